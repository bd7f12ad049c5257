// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors for the authorization
// core. They live in a standalone package so signer, keyset and consent can
// record into them without importing the HTTP layer.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNotFound = "not_found"
	ResultStale    = "stale"
)

var (
	// SignTotal counts token signing attempts by backend and result.
	SignTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "sign_total",
		Help:      "Token signing attempts by signer backend and result.",
	}, []string{"backend", "result"})

	// PublicKeyFetchTotal counts public key fetches from the signer backend.
	PublicKeyFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "public_key_fetch_total",
		Help:      "Public key fetches from the signer backend by result.",
	}, []string{"backend", "result"})

	// KeySetRefreshTotal counts verification key set refreshes.
	KeySetRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "keyset_refresh_total",
		Help:      "Verification key set refreshes by result.",
	}, []string{"result"})

	// ConsentTotal counts consent store operations.
	ConsentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "consent_total",
		Help:      "Consent decision operations by operation and result.",
	}, []string{"operation", "result"})
)

// Register registers all collectors on reg, or on the default registerer when
// reg is nil. Collectors that are already registered are ignored.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{SignTotal, PublicKeyFetchTotal, KeySetRefreshTotal, ConsentTotal} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Outcome maps an error to a result label.
func Outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
