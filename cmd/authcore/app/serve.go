// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/stacklok/authcore/pkg/authcore/consent/storage"
	"github.com/stacklok/authcore/pkg/authcore/keyset"
	"github.com/stacklok/authcore/pkg/authcore/metrics"
	"github.com/stacklok/authcore/pkg/authcore/scopes"
	"github.com/stacklok/authcore/pkg/authcore/server"
	"github.com/stacklok/authcore/pkg/authcore/signer"
	"github.com/stacklok/authcore/pkg/logger"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key set, discovery document, health and metrics",
		Long: `Start the HTTP server. It publishes:

  /.well-known/jwks.json               the verification key set
  /.well-known/openid-configuration    OIDC discovery metadata
  /healthz                             consent storage reachability
  /metrics                             Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: serveCmdFunc,
	}
	cmd.Flags().String("address", "", "Listen address (overrides server.address)")
	return cmd
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	address := cfg.Server.Address
	if flag, _ := cmd.Flags().GetString("address"); flag != "" {
		address = flag
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	s, err := signer.Default(ctx, cfg.SignerConfig())
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close consent storage: %v", err)
		}
	}()

	issuer := cfg.IssuerURL()
	handler := server.NewHandler(issuer, keyset.NewCache(keyset.NewSignerSource(s)), scopes.Default(), store, reg)

	logger.Infow("starting authcore",
		"issuer", issuer,
		"signer", s.Backend(),
		"storage", cfg.Consent.Storage.Type,
	)
	return server.Serve(ctx, address, handler.Routes())
}
