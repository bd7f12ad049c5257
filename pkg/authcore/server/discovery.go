// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stacklok/authcore/pkg/authcore/signer"
	"github.com/stacklok/authcore/pkg/logger"
)

// JWKSPath is where the key set is published.
const JWKSPath = "/.well-known/jwks.json"

// Cache-Control max-age values for discovery endpoints.
const (
	// JWKSCacheMaxAge matches the verifier-side key set TTL so rotated keys
	// propagate within one cache period.
	JWKSCacheMaxAge = 300

	// DiscoveryCacheMaxAge is the Cache-Control max-age for the discovery endpoint (1 hour).
	DiscoveryCacheMaxAge = 3600
)

// DiscoveryDocument is the subset of OIDC Discovery 1.0 metadata published
// by the authorization core.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	JWKSURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// JWKSHandler handles GET /.well-known/jwks.json requests.
func (h *Handler) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.keys.Document(r.Context())
	if err != nil {
		logger.Errorw("failed to build JWKS", "error", err.Error())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, data, JWKSCacheMaxAge)
}

// OIDCDiscoveryHandler handles GET /.well-known/openid-configuration requests.
func (h *Handler) OIDCDiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	doc := DiscoveryDocument{
		Issuer:                           h.issuer,
		JWKSURI:                          h.issuer + JWKSPath,
		ScopesSupported:                  h.registry.Catalog(),
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{signer.Algorithm},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		logger.Errorw("failed to encode discovery document", "error", err.Error())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, data, DiscoveryCacheMaxAge)
}

func writeJSON(w http.ResponseWriter, data []byte, maxAge int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
