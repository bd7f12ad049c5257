// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package consent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authcore/consent"
	"github.com/stacklok/authcore/pkg/authcore/consent/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails the operations it is told to.
type failingStore struct {
	consent.Store
	saveErr  error
	purgeErr error
	purges   int
}

func (f *failingStore) Save(ctx context.Context, d *consent.Decision, now time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, d, now)
}

func (f *failingStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.purges++
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.Store.PurgeExpired(ctx, now)
}

const issuer = "https://auth.example.edu"

func newService(t *testing.T, store consent.Store) (*consent.Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	return consent.NewService(store, issuer+"/", consent.WithClock(clock.Now)), clock
}

func TestService_RecordDecisionRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		id           string
		approved     bool
		wantRedirect string
	}{
		{
			name:         "approve continues to login",
			id:           "abc123",
			approved:     true,
			wantRedirect: issuer + "/api/oauth/interaction/abc123/login",
		},
		{
			name:         "deny aborts",
			id:           "abc123",
			approved:     false,
			wantRedirect: issuer + "/api/oauth/interaction/abc123/abort",
		},
		{
			name:         "id is path escaped",
			id:           "a/b c",
			approved:     true,
			wantRedirect: issuer + "/api/oauth/interaction/a%2Fb%20c/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newService(t, storage.NewMemoryStore())

			redirect, err := svc.RecordDecision(context.Background(), tt.id, 1, tt.approved, []string{"openid"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRedirect, redirect)
		})
	}
}

func TestService_RecordConsumeConsume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, clock := newService(t, storage.NewMemoryStore())

	_, err := svc.RecordDecision(ctx, "ix", 42, true, []string{"openid", "chat:use"})
	require.NoError(t, err)

	d, err := svc.ConsumeDecision(ctx, "ix")
	require.NoError(t, err)
	assert.Equal(t, "ix", d.InteractionID)
	assert.Equal(t, int64(42), d.UserID)
	assert.True(t, d.Approved)
	assert.Equal(t, []string{"openid", "chat:use"}, d.Scopes)
	assert.Equal(t, clock.Now().Add(consent.DefaultTTL), d.ExpiresAt)

	_, err = svc.ConsumeDecision(ctx, "ix")
	assert.ErrorIs(t, err, consent.ErrNotFound)
}

func TestService_DeniedDecisionDropsScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newService(t, storage.NewMemoryStore())
	_, err := svc.RecordDecision(ctx, "ix", 42, false, []string{"openid", "admin:all"})
	require.NoError(t, err)

	d, err := svc.ConsumeDecision(ctx, "ix")
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.NotNil(t, d.Scopes)
	assert.Empty(t, d.Scopes)
}

func TestService_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "just inside", elapsed: 4*time.Minute + 59*time.Second},
		{name: "just outside", elapsed: 5*time.Minute + time.Second, wantErr: consent.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			svc, clock := newService(t, storage.NewMemoryStore())
			_, err := svc.RecordDecision(ctx, "ix", 1, true, []string{"openid"})
			require.NoError(t, err)

			clock.Advance(tt.elapsed)
			_, err = svc.ConsumeDecision(ctx, "ix")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_LatestDecisionWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newService(t, storage.NewMemoryStore())
	_, err := svc.RecordDecision(ctx, "ix", 1, true, []string{"openid"})
	require.NoError(t, err)
	_, err = svc.RecordDecision(ctx, "ix", 1, false, nil)
	require.NoError(t, err)

	d, err := svc.ConsumeDecision(ctx, "ix")
	require.NoError(t, err)
	assert.False(t, d.Approved)
}

func TestService_RecordFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &failingStore{Store: storage.NewMemoryStore(), saveErr: errors.New("disk full")}
	svc, _ := newService(t, store)

	redirect, err := svc.RecordDecision(ctx, "ix", 1, true, []string{"openid"})
	require.ErrorIs(t, err, consent.ErrRecordFailed)
	assert.Empty(t, redirect)

	_, err = svc.RecordDecision(ctx, "", 1, true, nil)
	assert.ErrorIs(t, err, consent.ErrInvalidDecision)
}

func TestService_GarbageCollectionIsBestEffort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &failingStore{Store: storage.NewMemoryStore(), purgeErr: errors.New("locked")}
	svc, _ := newService(t, store)

	_, err := svc.RecordDecision(ctx, "ix", 1, true, []string{"openid"})
	require.NoError(t, err)

	d, err := svc.ConsumeDecision(ctx, "ix")
	require.NoError(t, err, "purge failures are never returned")
	assert.Equal(t, "ix", d.InteractionID)
	assert.Equal(t, 1, store.purges)
}

func TestService_PurgeExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, clock := newService(t, storage.NewMemoryStore())
	for _, id := range []string{"a", "b"} {
		_, err := svc.RecordDecision(ctx, id, 1, true, nil)
		require.NoError(t, err)
	}
	clock.Advance(consent.DefaultTTL)
	_, err := svc.RecordDecision(ctx, "c", 1, true, nil)
	require.NoError(t, err)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.ConsumeDecision(ctx, "c")
	assert.NoError(t, err)
}
