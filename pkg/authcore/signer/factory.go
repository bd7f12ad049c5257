// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"context"
	"sync"
	"time"

	"github.com/stacklok/authcore/pkg/logger"
)

// Config selects and configures the signing backend.
type Config struct {
	// KeyARN is the KMS key ARN or alias. When set, tokens are signed in KMS.
	KeyARN string

	// KeyID is the published "kid". Defaults to KeyARN.
	KeyID string

	// Region is the AWS region of the key. Empty uses the SDK default chain.
	Region string

	// Endpoint overrides the KMS endpoint (LocalStack, VPC endpoints).
	Endpoint string

	// PublicKeyTTL bounds reuse of a fetched KMS public key.
	PublicKeyTTL time.Duration
}

// UsesKMS reports whether the configuration selects the KMS backend.
func (c Config) UsesKMS() bool {
	return c.KeyARN != ""
}

// New builds the signer selected by cfg: KMS when a key reference is
// configured, otherwise a local ephemeral key.
func New(ctx context.Context, cfg Config) (Signer, error) {
	if cfg.UsesKMS() {
		s, err := NewKMSSigner(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Infow("using KMS token signer", "key", cfg.KeyARN, "key_id", s.keyID)
		return s, nil
	}
	logger.Info("no KMS key configured, using local development signer")
	return NewLocalSigner(), nil
}

var (
	defaultMu     sync.Mutex
	defaultSigner Signer
)

// Default returns the process-wide signer, building it from cfg on first
// use. Later calls return the same instance regardless of cfg. A failed
// construction is not memoized.
func Default(ctx context.Context, cfg Config) (Signer, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSigner != nil {
		return defaultSigner, nil
	}
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defaultSigner = s
	return s, nil
}

// ResetDefault discards the memoized signer. Intended for tests.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSigner = nil
}
