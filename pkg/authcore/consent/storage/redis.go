// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/authcore/pkg/authcore/consent"
)

// KeyTypeConsent is the key type segment for consent decisions.
const KeyTypeConsent = "consent"

// RedisStore implements consent.Store on Redis. Keys carry a native TTL
// matching the decision expiry, and consumption uses GETDEL.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// storedDecision is the JSON form of a decision in Redis.
type storedDecision struct {
	UserID    int64    `json:"user_id"`
	Approved  bool     `json:"approved"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"`
}

// NewRedisStore connects to the Redis server described by cfg.
func NewRedisStore(ctx context.Context, cfg *Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := waitForBackend(ctx, "redis", ping, DefaultConnectAttempts, DefaultConnectInterval); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func redisKey(prefix, keyType, id string) string {
	return prefix + keyType + ":" + id
}

// Save implements consent.Store. The key TTL is measured from now, and a
// decision that has already expired at now removes any earlier decision for
// the interaction.
func (s *RedisStore) Save(ctx context.Context, d *consent.Decision, now time.Time) error {
	key := redisKey(s.keyPrefix, KeyTypeConsent, d.InteractionID)

	ttl := d.ExpiresAt.Sub(now)
	if ttl <= 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete consent decision: %w", err)
		}
		return nil
	}

	scopes := d.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	data, err := json.Marshal(storedDecision{
		UserID:    d.UserID,
		Approved:  d.Approved,
		Scopes:    scopes,
		ExpiresAt: d.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal consent decision: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store consent decision: %w", err)
	}
	return nil
}

// Consume implements consent.Store.
func (s *RedisStore) Consume(ctx context.Context, interactionID string, now time.Time) (*consent.Decision, error) {
	key := redisKey(s.keyPrefix, KeyTypeConsent, interactionID)

	data, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, consent.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume consent decision: %w", err)
	}

	var stored storedDecision
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consent decision: %w", err)
	}

	d := &consent.Decision{
		InteractionID: interactionID,
		UserID:        stored.UserID,
		Approved:      stored.Approved,
		Scopes:        stored.Scopes,
		ExpiresAt:     time.UnixMilli(stored.ExpiresAt).UTC(),
	}
	if d.Scopes == nil {
		d.Scopes = []string{}
	}
	// Key expiry has second granularity on some servers; the stored instant
	// is authoritative.
	if d.IsExpired(now) {
		return nil, consent.ErrNotFound
	}
	return d, nil
}

// PurgeExpired implements consent.Store. Redis expires keys itself.
func (*RedisStore) PurgeExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ consent.Store = (*RedisStore)(nil)
