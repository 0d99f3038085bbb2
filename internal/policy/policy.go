/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package policy looks up per-device opt-out policies from DynamoDB, a SQL
// database or a YAML file, with an optional Redis cache in front.
package policy

import (
	"context"
	"errors"

	"github.com/friendsincode/limitgate/internal/optout"
)

var (
	// ErrDeviceNotFound is returned when no policy exists for a device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrLookupUnavailable wraps transport failures talking to the policy store.
	ErrLookupUnavailable = errors.New("policy lookup unavailable")

	// ErrReadOnly is returned by backends that cannot store policies.
	ErrReadOnly = errors.New("policy backend is read-only")
)

// Record is a device policy as stored. Values are unvalidated until Resolve.
type Record struct {
	Timezone    string `json:"timezone" yaml:"timezone" dynamodbav:"timezone"`
	OptOutStart string `json:"opt_out_start" yaml:"opt_out_start" dynamodbav:"local_start_opt_out"`
	OptOutEnd   string `json:"opt_out_end" yaml:"opt_out_end" dynamodbav:"local_end_opt_out"`
}

// Lookup fetches the policy for a device.
type Lookup interface {
	Lookup(ctx context.Context, deviceID string) (Record, error)
}

// Writer stores the policy for a device, replacing any existing one.
type Writer interface {
	Put(ctx context.Context, deviceID string, rec Record) error
}

// Store is a backend that supports both reads and writes.
type Store interface {
	Lookup
	Writer
}

// Resolve validates rec and loads its time zone. Failures wrap
// optout.ErrInvalidPolicy.
func Resolve(rec Record, zones optout.ZoneSource) (optout.Policy, error) {
	return optout.NewPolicy(rec.Timezone, rec.OptOutStart, rec.OptOutEnd, zones)
}
