// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package consent records a user's approve/deny decision for an OIDC
// interaction and hands it to the interaction endpoint exactly once.
package consent

import (
	"context"
	"time"
)

// DefaultTTL is how long a recorded decision remains consumable.
const DefaultTTL = 5 * time.Minute

// Decision is a user's answer to a consent prompt.
type Decision struct {
	// InteractionID identifies the OIDC interaction the decision belongs to.
	InteractionID string

	// UserID is the user who answered the prompt.
	UserID int64

	// Approved is true when the user granted access.
	Approved bool

	// Scopes are the granted scopes in request order. Empty when denied.
	Scopes []string

	// ExpiresAt is when the decision stops being consumable.
	ExpiresAt time.Time
}

// IsExpired reports whether the decision is no longer consumable at now.
func (d *Decision) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Store persists decisions. Implementations must make Consume atomic: of any
// number of concurrent consumers of the same interaction, at most one
// receives the decision.
type Store interface {
	// Save upserts the decision keyed by its InteractionID. now is the
	// caller's clock, used by backends that derive a native TTL from it.
	Save(ctx context.Context, d *Decision, now time.Time) error

	// Consume returns and deletes the decision if it has not expired at now.
	// It returns ErrNotFound otherwise.
	Consume(ctx context.Context, interactionID string, now time.Time) (*Decision, error)

	// PurgeExpired deletes decisions that expired at or before now and
	// returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
