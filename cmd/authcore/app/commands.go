// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the authcore command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/authcore/pkg/config"
	"github.com/stacklok/authcore/pkg/logger"
)

// NewRootCmd creates a new root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "authcore",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "authcore signs tokens and brokers OAuth consent decisions",
		Long: `authcore is the authorization core of an OAuth2/OpenID Connect provider.
It mints RS256 tokens with a local or AWS KMS key, publishes the verification
key set, and records consent decisions for the interaction flow.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newJWKSCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newConsentCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig reads the configuration named by --config plus the AUTHCORE_
// environment. A debug setting in the file raises the log level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !viper.GetBool("debug") {
		viper.Set("debug", true)
		logger.Initialize()
	}
	return cfg, nil
}
