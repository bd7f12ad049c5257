// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/authcore/pkg/authcore/signer"
	"github.com/stacklok/authcore/pkg/logger"
)

// Verifier validates tokens against the keys held by a Cache.
type Verifier struct {
	cache *Cache
	opts  []jwt.ParserOption
}

// NewVerifier creates a verifier. Only RS256 is accepted; opts can add
// issuer, audience or clock checks.
func NewVerifier(cache *Cache, opts ...jwt.ParserOption) *Verifier {
	all := append([]jwt.ParserOption{jwt.WithValidMethods([]string{signer.Algorithm})}, opts...)
	return &Verifier{cache: cache, opts: all}
}

// Verify checks the token signature and registered claims and returns the
// claims. When the token names a key the cache does not hold, the cache is
// refreshed once before giving up with ErrUnknownKeyID.
func (v *Verifier) Verify(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims, err := v.parse(ctx, token)
	if errors.Is(err, ErrUnknownKeyID) {
		logger.Debugw("token signed with unknown key, refreshing key set", "error", err)
		v.cache.ForceRefresh()
		claims, err = v.parse(ctx, token)
	}
	if err != nil {
		if errors.Is(err, ErrUnknownKeyID) || errors.Is(err, ErrKeySetUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

func (v *Verifier) parse(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (any, error) {
		return v.lookup(ctx, tk)
	}, v.opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) lookup(ctx context.Context, tk *jwt.Token) (any, error) {
	kid, _ := tk.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header missing kid")
	}

	set, err := v.cache.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Key(kid) {
		if k.Use != "" && k.Use != signer.KeyUse {
			continue
		}
		if pub, ok := k.Key.(*rsa.PublicKey); ok {
			return pub, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKeyID, kid)
}
