// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3/database"

	"github.com/stacklok/authcore/pkg/authcore/consent"
)

// PostgresStore implements consent.Store on PostgreSQL, letting decisions be
// recorded and consumed by different instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := waitForBackend(ctx, "postgres", pool.Ping, DefaultConnectAttempts, DefaultConnectInterval); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = runMigrations(ctx, db, database.DialectPostgres, "postgres")
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresStoreWithPool(pool), nil
}

// NewPostgresStoreWithPool wraps an existing pool. The schema must already
// be migrated.
func NewPostgresStoreWithPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save implements consent.Store.
func (s *PostgresStore) Save(ctx context.Context, d *consent.Decision, _ time.Time) error {
	scopes := d.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consent_decisions (interaction_id, user_id, approved, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (interaction_id) DO UPDATE SET
			user_id    = EXCLUDED.user_id,
			approved   = EXCLUDED.approved,
			scopes     = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at`,
		d.InteractionID, d.UserID, d.Approved, scopes, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting consent decision: %w", err)
	}
	return nil
}

// Consume implements consent.Store.
func (s *PostgresStore) Consume(ctx context.Context, interactionID string, now time.Time) (*consent.Decision, error) {
	d := consent.Decision{InteractionID: interactionID}
	err := s.pool.QueryRow(ctx, `
		DELETE FROM consent_decisions
		WHERE interaction_id = $1 AND expires_at > $2
		RETURNING user_id, approved, scopes, expires_at`,
		interactionID, now,
	).Scan(&d.UserID, &d.Approved, &d.Scopes, &d.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, consent.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming consent decision: %w", err)
	}
	if d.Scopes == nil {
		d.Scopes = []string{}
	}
	return &d, nil
}

// PurgeExpired implements consent.Store.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM consent_decisions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purging expired consent decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping implements consent.Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements consent.Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ consent.Store = (*PostgresStore)(nil)
