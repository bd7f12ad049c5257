// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/authcore/pkg/logger"
)

const (
	// DefaultConnectAttempts bounds the initial connectivity check of
	// network backends.
	DefaultConnectAttempts = 5

	// DefaultConnectInterval is the first delay between connection attempts.
	DefaultConnectInterval = 200 * time.Millisecond
)

// waitForBackend calls ping until it succeeds, retrying with exponential
// backoff up to attempts times.
func waitForBackend(
	ctx context.Context,
	name string,
	ping func(context.Context) error,
	attempts uint,
	interval time.Duration,
) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = interval
	expBackoff.MaxInterval = 10 * interval
	expBackoff.Reset()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := ping(ctx); err != nil {
			logger.Debugf("%s not reachable (attempt %d/%d): %v", name, attempt, attempts, err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(_ error, d time.Duration) {
			logger.Infof("waiting %v for %s", d.Round(time.Millisecond), name)
		}),
	)
	return err
}
