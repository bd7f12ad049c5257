// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/stacklok/authcore/pkg/authcore/signer"
)

// KeySource supplies the public keys a Cache serves.
type KeySource interface {
	Keys(ctx context.Context) ([]jose.JSONWebKey, error)
}

// SignerSource publishes the active key of an in-process signer.
type SignerSource struct {
	signer signer.Signer
}

// NewSignerSource wraps s as a KeySource.
func NewSignerSource(s signer.Signer) *SignerSource {
	return &SignerSource{signer: s}
}

// Keys implements KeySource.
func (s *SignerSource) Keys(ctx context.Context) ([]jose.JSONWebKey, error) {
	km, err := s.signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return []jose.JSONWebKey{km.JWK()}, nil
}

// DefaultRemoteTimeout bounds a single JWKS fetch.
const DefaultRemoteTimeout = 10 * time.Second

// RemoteSource reads a JWKS document over HTTP. Resource servers running in
// other processes use it to verify tokens issued by this service.
type RemoteSource struct {
	url    string
	client *http.Client
}

// RemoteOption configures a RemoteSource.
type RemoteOption func(*RemoteSource)

// WithHTTPClient replaces the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteSource) {
		r.client = c
	}
}

// NewRemoteSource creates a source for the JWKS document at url.
func NewRemoteSource(url string, opts ...RemoteOption) *RemoteSource {
	r := &RemoteSource{
		url:    url,
		client: &http.Client{Timeout: DefaultRemoteTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Keys implements KeySource.
func (r *RemoteSource) Keys(ctx context.Context) ([]jose.JSONWebKey, error) {
	set, err := jwk.Fetch(ctx, r.url, jwk.WithHTTPClient(r.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", r.url, err)
	}

	// Re-encode into the go-jose model shared with the rest of the package.
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JWKS: %w", err)
	}
	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}
	return jwks.Keys, nil
}
