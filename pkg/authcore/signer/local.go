// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/authcore/pkg/authcore/metrics"
	"github.com/stacklok/authcore/pkg/logger"
)

// localKey is an in-memory signing key.
type localKey struct {
	id        string
	private   *rsa.PrivateKey
	createdAt time.Time
}

// LocalSigner signs with an ephemeral RSA key generated on first use.
// Suitable for development only: the key is lost on restart and every
// process instance has a different key.
type LocalSigner struct {
	generate func() (*rsa.PrivateKey, error)
	now      func() time.Time

	key   atomic.Pointer[localKey]
	group singleflight.Group
}

// LocalOption configures a LocalSigner.
type LocalOption func(*LocalSigner)

// WithKeyGenerator replaces the RSA key generator.
func WithKeyGenerator(gen func() (*rsa.PrivateKey, error)) LocalOption {
	return func(s *LocalSigner) {
		s.generate = gen
	}
}

// WithClock replaces the clock used to derive key ids.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalSigner) {
		s.now = now
	}
}

// NewLocalSigner creates a signer whose key is generated lazily.
func NewLocalSigner(opts ...LocalOption) *LocalSigner {
	s := &LocalSigner{
		generate: func() (*rsa.PrivateKey, error) {
			return rsa.GenerateKey(rand.Reader, LocalKeyBits)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend implements Signer.
func (*LocalSigner) Backend() string {
	return BackendLocal
}

// activeKey returns the signing key, generating it on first use. Concurrent
// first callers share a single generation; a failed generation is not cached.
func (s *LocalSigner) activeKey() (*localKey, error) {
	if k := s.key.Load(); k != nil {
		return k, nil
	}

	v, err, _ := s.group.Do("generate", func() (any, error) {
		if k := s.key.Load(); k != nil {
			return k, nil
		}
		priv, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
		}
		created := s.now().UTC()
		k := &localKey{
			id:        "local-" + created.Format("20060102T150405.000000000Z"),
			private:   priv,
			createdAt: created,
		}
		s.key.Store(k)

		logger.Warnw("generated ephemeral signing key - tokens will be invalid after restart",
			"algorithm", Algorithm,
			"key_id", k.id,
		)
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*localKey), nil
}

// Sign implements Signer.
func (s *LocalSigner) Sign(_ context.Context, claims map[string]any) (token string, err error) {
	defer func() { metrics.SignTotal.WithLabelValues(BackendLocal, metrics.Outcome(err)).Inc() }()

	k, err := s.activeKey()
	if err != nil {
		return "", err
	}

	tk := newToken(claims, k.id)
	input, err := signingInput(tk)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	sig, err := jwt.SigningMethodRS256.Sign(input, k.private)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return assemble(tk, input, sig), nil
}

// PublicKey implements Signer. It generates the key if needed.
func (s *LocalSigner) PublicKey(_ context.Context) (*KeyMaterial, error) {
	k, err := s.activeKey()
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{
		KeyID:     k.id,
		Algorithm: Algorithm,
		PublicKey: &k.private.PublicKey,
	}, nil
}

// KeyID implements Signer. It generates the key if needed.
func (s *LocalSigner) KeyID(_ context.Context) (string, error) {
	k, err := s.activeKey()
	if err != nil {
		return "", err
	}
	return k.id, nil
}

var _ Signer = (*LocalSigner)(nil)
