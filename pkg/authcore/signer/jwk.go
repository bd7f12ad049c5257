// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// PublicKeyFromDER decodes a DER SubjectPublicKeyInfo (the form returned by
// KMS GetPublicKey) into an RSA public key.
func PublicKeyFromDER(der []byte) (*rsa.PublicKey, error) {
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: empty DER input", ErrInvalidPublicKey)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrInvalidPublicKey, pub)
	}
	return rsaPub, nil
}
