// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keyset caches the public signing keys used to verify issued tokens
// and renders them as a JWKS discovery document.
package keyset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/authcore/pkg/authcore/metrics"
	"github.com/stacklok/authcore/pkg/logger"
)

// DefaultTTL is how long a fetched key set is served before refreshing.
const DefaultTTL = 5 * time.Minute

// Cache is a read-mostly TTL cache over a KeySource. A failed refresh keeps
// serving the previous set for another TTL when one exists.
type Cache struct {
	source KeySource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	set       *jose.JSONWebKeySet
	fetchedAt time.Time

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the cache clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache over source.
func NewCache(source KeySource, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fresh returns the cached set if it is within its TTL. Caller holds mu.
func (c *Cache) fresh() (*jose.JSONWebKeySet, bool) {
	if c.set == nil || c.fetchedAt.IsZero() {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.set, true
}

// KeySet returns the current key set, refreshing it from the source when the
// TTL has elapsed or ForceRefresh was called.
func (c *Cache) KeySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	c.mu.RLock()
	set, ok := c.fresh()
	c.mu.RUnlock()
	if ok {
		return *set, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	return *v.(*jose.JSONWebKeySet), nil
}

func (c *Cache) refresh(ctx context.Context) (*jose.JSONWebKeySet, error) {
	c.mu.RLock()
	set, ok := c.fresh()
	stale := c.set
	c.mu.RUnlock()
	if ok {
		return set, nil
	}

	keys, err := c.source.Keys(ctx)
	if err != nil {
		if stale != nil {
			metrics.KeySetRefreshTotal.WithLabelValues(metrics.ResultStale).Inc()
			logger.Warnw("failed to refresh key set, serving cached keys", "error", err)
			// Hold the stale set for one TTL so a failing source is not hit on every read.
			c.mu.Lock()
			c.fetchedAt = c.now()
			c.mu.Unlock()
			return stale, nil
		}
		metrics.KeySetRefreshTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}

	next := &jose.JSONWebKeySet{Keys: keys}
	c.mu.Lock()
	c.set = next
	c.fetchedAt = c.now()
	c.mu.Unlock()

	metrics.KeySetRefreshTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return next, nil
}

// ForceRefresh invalidates the cached set so the next KeySet call reloads
// it from the source. The stale set remains available as a fallback.
func (c *Cache) ForceRefresh() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
	logger.Debug("key set refresh forced")
}

// Document renders the key set as a JWKS discovery document.
func (c *Cache) Document(ctx context.Context) ([]byte, error) {
	set, err := c.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	if set.Keys == nil {
		set.Keys = []jose.JSONWebKey{}
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JWKS: %w", err)
	}
	return raw, nil
}
