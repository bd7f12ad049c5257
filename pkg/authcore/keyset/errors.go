// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyset

import "errors"

var (
	// ErrUnknownKeyID is returned when a token's kid is absent from the key
	// set even after a forced refresh.
	ErrUnknownKeyID = errors.New("unknown key id")

	// ErrInvalidToken is returned for malformed, unsigned, tampered or
	// expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeySetUnavailable is returned when the key source fails and no
	// previously fetched key set can be served.
	ErrKeySetUnavailable = errors.New("key set unavailable")
)
