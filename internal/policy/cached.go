/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package policy

import (
	"context"
	"time"

	"github.com/friendsincode/limitgate/internal/cache"
	"github.com/friendsincode/limitgate/internal/telemetry"
	"github.com/rs/zerolog"
)

// Cache is the subset of *cache.Cache used by Cached.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cached serves lookups from a cache before falling through to next.
// Missing devices are not cached.
type Cached struct {
	next   Lookup
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps next.
func NewCached(next Lookup, c Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = cache.DefaultPolicyTTL
	}
	return &Cached{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With().Str("component", "policy_cache").Logger(),
	}
}

// Lookup implements Lookup.
func (c *Cached) Lookup(ctx context.Context, deviceID string) (Record, error) {
	key := cache.KeyPolicy + deviceID

	var rec Record
	if c.cache.GetJSON(ctx, key, &rec) {
		telemetry.PolicyCacheResults.WithLabelValues("hit").Inc()
		return rec, nil
	}
	telemetry.PolicyCacheResults.WithLabelValues("miss").Inc()

	rec, err := c.next.Lookup(ctx, deviceID)
	if err != nil {
		return Record{}, err
	}
	if err := c.cache.SetJSON(ctx, key, rec, c.ttl); err != nil {
		c.logger.Debug().Err(err).Str("device_id", deviceID).Msg("failed to cache policy")
	}
	return rec, nil
}

// Put writes through to the wrapped backend and drops the cached entry.
func (c *Cached) Put(ctx context.Context, deviceID string, rec Record) error {
	w, ok := c.next.(Writer)
	if !ok {
		return ErrReadOnly
	}
	if err := w.Put(ctx, deviceID, rec); err != nil {
		return err
	}
	return c.Invalidate(ctx, deviceID)
}

// Invalidate drops the cached policy for deviceID.
func (c *Cached) Invalidate(ctx context.Context, deviceID string) error {
	return c.cache.Delete(ctx, cache.KeyPolicy+deviceID)
}

// Unwrap returns the wrapped backend.
func (c *Cached) Unwrap() Lookup {
	return c.next
}
