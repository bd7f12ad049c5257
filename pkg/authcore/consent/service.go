// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/stacklok/authcore/pkg/authcore/metrics"
	"github.com/stacklok/authcore/pkg/logger"
)

// Metric operation labels.
const (
	opRecord  = "record"
	opConsume = "consume"
	opPurge   = "purge"
)

// Service records consent decisions and consumes them once.
type Service struct {
	store  Store
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service. issuer is the base URL the consent
// redirects point at.
func NewService(store Store, issuer string, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		issuer: strings.TrimRight(issuer, "/"),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordDecision stores the user's answer for an interaction, replacing any
// earlier answer, and returns where the browser should be sent next. Denied
// decisions carry no scopes.
func (s *Service) RecordDecision(
	ctx context.Context,
	interactionID string,
	userID int64,
	approved bool,
	scopes []string,
) (redirect string, err error) {
	defer func() { metrics.ConsentTotal.WithLabelValues(opRecord, metrics.Outcome(err)).Inc() }()

	if interactionID == "" {
		return "", fmt.Errorf("%w: interaction id is required", ErrInvalidDecision)
	}

	granted := []string{}
	if approved {
		granted = slices.Clone(scopes)
		if granted == nil {
			granted = []string{}
		}
	}

	now := s.now()
	d := &Decision{
		InteractionID: interactionID,
		UserID:        userID,
		Approved:      approved,
		Scopes:        granted,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, d, now); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	logger.Debugw("recorded consent decision",
		"interaction_id", interactionID,
		"user_id", userID,
		"approved", approved,
	)
	return s.RedirectURL(interactionID, approved), nil
}

// ConsumeDecision returns the live decision for an interaction and removes
// it. Every miss is reported as ErrNotFound.
func (s *Service) ConsumeDecision(ctx context.Context, interactionID string) (*Decision, error) {
	now := s.now()
	d, err := s.store.Consume(ctx, interactionID, now)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.ConsentTotal.WithLabelValues(opConsume, metrics.ResultNotFound).Inc()
		return nil, ErrNotFound
	case err != nil:
		metrics.ConsentTotal.WithLabelValues(opConsume, metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to consume consent decision: %w", err)
	}
	metrics.ConsentTotal.WithLabelValues(opConsume, metrics.ResultSuccess).Inc()

	if _, err := s.purge(ctx, now); err != nil {
		logger.Debugw("consent garbage collection failed", "error", err)
	}
	return d, nil
}

// PurgeExpired removes expired decisions from the store.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.purge(ctx, s.now())
}

func (s *Service) purge(ctx context.Context, now time.Time) (n int64, err error) {
	defer func() { metrics.ConsentTotal.WithLabelValues(opPurge, metrics.Outcome(err)).Inc() }()
	return s.store.PurgeExpired(ctx, now)
}

// RedirectURL returns the interaction endpoint that continues (approved) or
// aborts (denied) the OIDC flow.
func (s *Service) RedirectURL(interactionID string, approved bool) string {
	action := "abort"
	if approved {
		action = "login"
	}
	return s.issuer + "/api/oauth/interaction/" + url.PathEscape(interactionID) + "/" + action
}
