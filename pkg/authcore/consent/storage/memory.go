// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/authcore/pkg/authcore/consent"
	"github.com/stacklok/authcore/pkg/logger"
)

// MemoryStore keeps decisions in process memory. Decisions recorded on one
// instance cannot be consumed on another, so it is only suitable for
// development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	decisions map[string]*consent.Decision
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	logger.Warn("using in-memory consent storage - decisions are not shared between instances and are lost on restart")
	return &MemoryStore{decisions: make(map[string]*consent.Decision)}
}

func cloneDecision(d *consent.Decision) *consent.Decision {
	c := *d
	c.Scopes = slices.Clone(d.Scopes)
	if c.Scopes == nil {
		c.Scopes = []string{}
	}
	return &c
}

// Save implements consent.Store.
func (s *MemoryStore) Save(_ context.Context, d *consent.Decision, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.InteractionID] = cloneDecision(d)
	return nil
}

// Consume implements consent.Store.
func (s *MemoryStore) Consume(_ context.Context, interactionID string, now time.Time) (*consent.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[interactionID]
	if !ok || d.IsExpired(now) {
		return nil, consent.ErrNotFound
	}
	delete(s.decisions, interactionID)
	return d, nil
}

// PurgeExpired implements consent.Store.
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Collect first, then delete.
	var expired []string
	for id, d := range s.decisions {
		if d.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.decisions, id)
	}
	return int64(len(expired)), nil
}

// Ping implements consent.Store.
func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close implements consent.Store.
func (*MemoryStore) Close() error {
	return nil
}

var _ consent.Store = (*MemoryStore)(nil)
