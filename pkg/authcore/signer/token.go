// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"fmt"
	"maps"

	"github.com/golang-jwt/jwt/v5"
)

// newToken builds an unsigned RS256 token with the standard header.
func newToken(claims map[string]any, keyID string) *jwt.Token {
	mc := make(jwt.MapClaims, len(claims))
	maps.Copy(mc, claims)

	tk := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	tk.Header["kid"] = keyID
	tk.Header["typ"] = TokenType
	return tk
}

// signingInput returns the "base64url(header).base64url(claims)" string that
// the signature covers.
func signingInput(tk *jwt.Token) (string, error) {
	s, err := tk.SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return s, nil
}

// assemble appends a raw signature to a signing input.
func assemble(tk *jwt.Token, input string, sig []byte) string {
	return input + "." + tk.EncodeSegment(sig)
}
