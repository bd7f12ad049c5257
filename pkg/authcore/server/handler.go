// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the key set, discovery metadata, health and metrics
// over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/authcore/pkg/authcore/keyset"
	"github.com/stacklok/authcore/pkg/authcore/scopes"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides the HTTP handlers of the authorization core.
type Handler struct {
	issuer   string
	keys     *keyset.Cache
	registry *scopes.Registry
	health   Pinger
	gatherer prometheus.Gatherer
}

// NewHandler creates a Handler. health may be nil, in which case /healthz
// always succeeds; gatherer may be nil to disable /metrics.
func NewHandler(
	issuer string,
	keys *keyset.Cache,
	registry *scopes.Registry,
	health Pinger,
	gatherer prometheus.Gatherer,
) *Handler {
	return &Handler{
		issuer:   issuer,
		keys:     keys,
		registry: registry,
		health:   health,
		gatherer: gatherer,
	}
}

// Routes returns a router with all endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.WellKnownRoutes(r)
	r.Get("/healthz", h.HealthHandler)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// WellKnownRoutes registers the JWKS and OIDC discovery endpoints.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get(JWKSPath, h.JWKSHandler)
	r.Get("/.well-known/openid-configuration", h.OIDCDiscoveryHandler)
}
