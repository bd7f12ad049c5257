// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the persistence backends for consent decisions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/authcore/pkg/authcore/consent"
)

// Type defines the type of storage backend.
type Type string

const (
	// TypeSQLite stores decisions in a local SQLite file (default).
	TypeSQLite Type = "sqlite"

	// TypePostgres stores decisions in a shared PostgreSQL database.
	TypePostgres Type = "postgres"

	// TypeRedis stores decisions in Redis with native key expiry.
	TypeRedis Type = "redis"

	// TypeMemory keeps decisions in process memory. Development only.
	TypeMemory Type = "memory"
)

const (
	// DefaultSQLitePath is used when no SQLite path is configured.
	DefaultSQLitePath = "authcore.db"

	// DefaultKeyPrefix namespaces Redis keys.
	DefaultKeyPrefix = "authcore:"

	// DefaultDialTimeout is the default timeout for establishing connections.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout is the default timeout for socket reads.
	DefaultReadTimeout = 3 * time.Second

	// DefaultWriteTimeout is the default timeout for socket writes.
	DefaultWriteTimeout = 3 * time.Second
)

// Config selects and configures the consent storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to sqlite.
	Type Type

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string

	// RedisAddr, RedisPassword and RedisDB configure the redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KeyPrefix namespaces Redis keys.
	KeyPrefix string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:       TypeSQLite,
		SQLitePath: DefaultSQLitePath,
		KeyPrefix:  DefaultKeyPrefix,
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeSQLite, "":
		return nil
	case TypePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres DSN is required")
		}
	case TypeRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address is required")
		}
	case TypeMemory:
		return nil
	default:
		return fmt.Errorf("unsupported consent storage type %q", c.Type)
	}
	return nil
}

// New opens the backend selected by cfg and applies any pending migrations.
func New(ctx context.Context, cfg *Config) (consent.Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consent storage configuration: %w", err)
	}

	switch cfg.Type {
	case TypePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case TypeRedis:
		return NewRedisStore(ctx, cfg)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStore(ctx, path)
	}
}
