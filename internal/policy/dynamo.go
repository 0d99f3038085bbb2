/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/friendsincode/limitgate/internal/telemetry"
	"github.com/rs/zerolog"
)

// DynamoKey is the partition key attribute of the devices table.
const DynamoKey = "device_id"

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore reads and writes device policies in a DynamoDB table keyed by
// device_id, with string attributes timezone, local_start_opt_out and
// local_end_opt_out.
type DynamoStore struct {
	client DynamoAPI
	table  string
	logger zerolog.Logger
}

// NewDynamoStore creates a store over table.
func NewDynamoStore(client DynamoAPI, table string, logger zerolog.Logger) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		logger: logger.With().Str("component", "policy_dynamodb").Logger(),
	}
}

// Lookup implements Lookup.
func (s *DynamoStore) Lookup(ctx context.Context, deviceID string) (Record, error) {
	start := time.Now()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			DynamoKey: &types.AttributeValueMemberS{Value: deviceID},
		},
	})
	telemetry.PolicyLookupDuration.WithLabelValues("dynamodb").Observe(time.Since(start).Seconds())
	if err != nil {
		return Record{}, fmt.Errorf("%w: get item: %v", ErrLookupUnavailable, err)
	}
	if len(out.Item) == 0 {
		return Record{}, ErrDeviceNotFound
	}

	// Attributes of the wrong type are left empty and rejected by Resolve.
	rec := Record{
		Timezone:    stringAttr(out.Item, "timezone"),
		OptOutStart: stringAttr(out.Item, "local_start_opt_out"),
		OptOutEnd:   stringAttr(out.Item, "local_end_opt_out"),
	}
	s.logger.Debug().Str("device_id", deviceID).Str("timezone", rec.Timezone).Msg("policy loaded")
	return rec, nil
}

// Put implements Writer.
func (s *DynamoStore) Put(ctx context.Context, deviceID string, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	item[DynamoKey] = &types.AttributeValueMemberS{Value: deviceID}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("%w: put item: %v", ErrLookupUnavailable, err)
	}
	return nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if av, ok := item[name].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}
