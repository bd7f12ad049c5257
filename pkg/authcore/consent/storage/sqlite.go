// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stacklok/authcore/pkg/authcore/consent"
	"github.com/stacklok/authcore/pkg/logger"
)

// SQLiteStore implements consent.Store on a SQLite database file. The file is
// local to one host, so replicas behind a load balancer need postgres or redis.
// Expiry instants are stored as unix milliseconds and scopes as a JSON array.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db, database.DialectSQLite3, "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Warnw("sqlite consent storage is local to this host; use postgres or redis when running multiple instances",
		"path", path)
	return &SQLiteStore{db: db}, nil
}

// Save implements consent.Store.
func (s *SQLiteStore) Save(ctx context.Context, d *consent.Decision, _ time.Time) error {
	scopes, err := encodeScopes(d.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consent_decisions (interaction_id, user_id, approved, scopes, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (interaction_id) DO UPDATE SET
			user_id    = excluded.user_id,
			approved   = excluded.approved,
			scopes     = excluded.scopes,
			expires_at = excluded.expires_at`,
		d.InteractionID, d.UserID, d.Approved, scopes, d.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting consent decision: %w", err)
	}
	return nil
}

// Consume implements consent.Store. The select-and-delete is a single
// statement, so concurrent consumers cannot both observe the row.
func (s *SQLiteStore) Consume(ctx context.Context, interactionID string, now time.Time) (*consent.Decision, error) {
	var (
		d         = consent.Decision{InteractionID: interactionID}
		scopes    string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM consent_decisions
		WHERE interaction_id = ? AND expires_at > ?
		RETURNING user_id, approved, scopes, expires_at`,
		interactionID, now.UnixMilli(),
	).Scan(&d.UserID, &d.Approved, &scopes, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, consent.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming consent decision: %w", err)
	}

	if d.Scopes, err = decodeScopes(scopes); err != nil {
		return nil, err
	}
	d.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &d, nil
}

// PurgeExpired implements consent.Store.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM consent_decisions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging expired consent decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged consent decisions: %w", err)
	}
	return n, nil
}

// Ping implements consent.Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements consent.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeScopes(scopes []string) (string, error) {
	if scopes == nil {
		scopes = []string{}
	}
	b, err := json.Marshal(scopes)
	if err != nil {
		return "", fmt.Errorf("encoding scopes: %w", err)
	}
	return string(b), nil
}

func decodeScopes(raw string) ([]string, error) {
	scopes := []string{}
	if raw == "" {
		return scopes, nil
	}
	if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	return scopes, nil
}

var _ consent.Store = (*SQLiteStore)(nil)
