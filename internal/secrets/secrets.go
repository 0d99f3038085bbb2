/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package secrets provides the authorization token attached to stored commands.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// DefaultTokenField is the JSON field read from a structured secret.
const DefaultTokenField = "fakeToken"

// ErrSecretUnavailable is returned when the token cannot be obtained.
var ErrSecretUnavailable = errors.New("secret unavailable")

// Provider yields the downstream authorization token.
type Provider interface {
	FetchToken(ctx context.Context) (string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerProvider reads the token from AWS Secrets Manager on every
// call, so rotations take effect immediately.
type SecretsManagerProvider struct {
	client   SecretsManagerAPI
	secretID string
	field    string
}

// NewSecretsManagerProvider reads field from secretID. An empty field means
// DefaultTokenField.
func NewSecretsManagerProvider(client SecretsManagerAPI, secretID, field string) *SecretsManagerProvider {
	if field == "" {
		field = DefaultTokenField
	}
	return &SecretsManagerProvider{client: client, secretID: secretID, field: field}
}

// FetchToken implements Provider.
func (p *SecretsManagerProvider) FetchToken(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get secret value: %v", ErrSecretUnavailable, err)
	}

	var raw string
	switch {
	case out.SecretString != nil:
		raw = *out.SecretString
	case len(out.SecretBinary) > 0:
		raw = string(out.SecretBinary)
	default:
		return "", fmt.Errorf("%w: secret %s has no value", ErrSecretUnavailable, p.secretID)
	}
	return extractToken(raw, p.field)
}

// extractToken reads field from a JSON object secret. Anything that is not a
// JSON object is used verbatim.
func extractToken(raw, field string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		if trimmed == "" {
			return "", fmt.Errorf("%w: secret is empty", ErrSecretUnavailable)
		}
		return trimmed, nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return "", fmt.Errorf("%w: decode secret: %v", ErrSecretUnavailable, err)
	}
	token, ok := doc[field].(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: secret has no string field %q", ErrSecretUnavailable, field)
	}
	return token, nil
}

// Static serves a fixed token, for development.
type Static string

// FetchToken implements Provider.
func (s Static) FetchToken(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: no static token configured", ErrSecretUnavailable)
	}
	return string(s), nil
}
