// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/authcore/pkg/authcore/keyset"
	"github.com/stacklok/authcore/pkg/authcore/signer"
)

func newJWKSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the JSON Web Key Set of the configured signer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := signer.Default(cmd.Context(), cfg.SignerConfig())
			if err != nil {
				return err
			}
			doc, err := keyset.NewCache(keyset.NewSignerSource(s)).Document(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		},
	}
}
