// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package signer issues compact RS256 JWTs. A Signer is backed either by an
// ephemeral in-process RSA key (development) or by an asymmetric AWS KMS key
// whose private half never leaves the service.
package signer

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/go-jose/go-jose/v4"
)

//go:generate mockgen -destination=mocks/mock_kms_client.go -package=mocks -source=kms.go KMSClient

const (
	// Algorithm is the only JWS algorithm issued by this package.
	Algorithm = "RS256"

	// TokenType is the value of the "typ" header.
	TokenType = "JWT"

	// KeyUse is the JWK "use" value for signing keys.
	KeyUse = "sig"

	// DefaultPublicKeyTTL bounds how long a fetched KMS public key is reused.
	DefaultPublicKeyTTL = 5 * time.Minute

	// MaxKMSMessageSize is the largest RAW message KMS accepts for signing.
	MaxKMSMessageSize = 4096

	// LocalKeyBits is the modulus size of generated development keys.
	LocalKeyBits = 2048
)

// Backend names reported in logs and metrics.
const (
	BackendLocal = "local"
	BackendKMS   = "kms"
)

// Signer mints signed tokens and publishes the matching public key.
type Signer interface {
	// Sign returns a compact JWS over claims with header {alg, typ, kid}.
	Sign(ctx context.Context, claims map[string]any) (string, error)

	// PublicKey returns the public half of the active signing key.
	PublicKey(ctx context.Context) (*KeyMaterial, error)

	// KeyID returns the identifier of the active signing key.
	KeyID(ctx context.Context) (string, error)

	// Backend names the implementation, for logs and metrics.
	Backend() string
}

// KeyMaterial is the public portion of the active signing key.
type KeyMaterial struct {
	KeyID     string
	Algorithm string
	PublicKey *rsa.PublicKey
}

// JWK renders the key in JSON Web Key form (kty, use, kid, alg, n, e).
func (k *KeyMaterial) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.PublicKey,
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		Use:       KeyUse,
	}
}
