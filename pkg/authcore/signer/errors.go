// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import "errors"

// Sentinel errors for signing operations.
var (
	// ErrKeyGeneration is returned when the local signer cannot generate its key.
	// The failure is not cached; the next call retries generation.
	ErrKeyGeneration = errors.New("failed to generate signing key")

	// ErrSigningFailed is returned when producing a signature fails.
	ErrSigningFailed = errors.New("failed to sign token")

	// ErrMessageTooLarge is returned when the signing input exceeds MaxKMSMessageSize.
	ErrMessageTooLarge = errors.New("signing input exceeds KMS message size limit")

	// ErrPublicKeyFetch is returned when the public key cannot be obtained and
	// no previously fetched key is available.
	ErrPublicKeyFetch = errors.New("failed to fetch public key")

	// ErrInvalidPublicKey is returned when public key material cannot be decoded
	// or is not an RSA key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrMissingKeyReference is returned when a KMS signer is built without a key ARN or alias.
	ErrMissingKeyReference = errors.New("KMS key reference is required")

	// ErrAccessDenied classifies KMS authorization failures.
	ErrAccessDenied = errors.New("access to KMS key denied")

	// ErrKeyUnavailable classifies KMS keys that are missing, disabled or pending deletion.
	ErrKeyUnavailable = errors.New("KMS key unavailable")
)
