// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacklok/authcore/pkg/authcore/consent"
	"github.com/stacklok/authcore/pkg/authcore/consent/storage"
	"github.com/stacklok/authcore/pkg/authcore/scopes"
	"github.com/stacklok/authcore/pkg/logger"
)

func newConsentCmd() *cobra.Command {
	consentCmd := &cobra.Command{
		Use:   "consent",
		Short: "Manage consent decisions",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired consent decisions",
		Args:  cobra.NoArgs,
		RunE:  consentPurgeCmdFunc,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record and consume a consent decision end to end",
		Long: `Record a decision for a fresh interaction, print the redirect the
browser would follow, then consume the decision twice. The second consume
must report that no decision exists.`,
		Args: cobra.NoArgs,
		RunE: consentSimulateCmdFunc,
	}
	simulateCmd.Flags().Int64("user", 1, "User ID recorded with the decision")
	simulateCmd.Flags().Bool("deny", false, "Record a denial instead of an approval")
	simulateCmd.Flags().StringSlice("scope", []string{scopes.OpenID}, "Requested scope (repeatable)")

	consentCmd.AddCommand(purgeCmd, simulateCmd)
	return consentCmd
}

// withConsentService opens the configured store for the duration of fn.
func withConsentService(cmd *cobra.Command, fn func(context.Context, *consent.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close consent storage: %v", err)
		}
	}()
	return fn(ctx, consent.NewService(store, cfg.IssuerURL()))
}

func consentPurgeCmdFunc(cmd *cobra.Command, _ []string) error {
	return withConsentService(cmd, func(ctx context.Context, svc *consent.Service) error {
		n, err := svc.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired decisions\n", n)
		return err
	})
}

func consentSimulateCmdFunc(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetInt64("user")
	deny, _ := cmd.Flags().GetBool("deny")
	requested, _ := cmd.Flags().GetStringSlice("scope")

	return withConsentService(cmd, func(ctx context.Context, svc *consent.Service) error {
		out := cmd.OutOrStdout()
		interactionID := uuid.NewString()

		granted, ignored := splitKnownScopes(scopes.Default(), requested)
		for _, name := range ignored {
			logger.Warnw("ignoring scope that is not in the catalog", "scope", name)
		}

		redirect, err := svc.RecordDecision(ctx, interactionID, userID, !deny, granted)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "interaction: %s\nredirect:    %s\n", interactionID, redirect)
		if len(ignored) > 0 {
			fmt.Fprintf(out, "ignored:     %v\n", ignored)
		}

		d, err := svc.ConsumeDecision(ctx, interactionID)
		if err != nil {
			return err
		}
		printDecision(out, d)

		if _, err := svc.ConsumeDecision(ctx, interactionID); !errors.Is(err, consent.ErrNotFound) {
			return fmt.Errorf("decision for %s was consumable twice: %w", interactionID, err)
		}
		fmt.Fprintln(out, "second consume: not found")
		return nil
	})
}

// splitKnownScopes separates requested scopes into those the registry knows,
// deduplicated in request order, and those it does not.
func splitKnownScopes(reg *scopes.Registry, requested []string) (known, unknown []string) {
	for _, name := range requested {
		if _, ok := reg.Lookup(name); !ok && !slices.Contains(unknown, name) {
			unknown = append(unknown, name)
		}
	}
	return reg.Filter(requested), unknown
}

func printDecision(w io.Writer, d *consent.Decision) {
	fmt.Fprintf(w, "approved:    %t\nuser:        %d\nscopes:      %v\n", d.Approved, d.UserID, d.Scopes)
}
