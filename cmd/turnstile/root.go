// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnstile-gql/turnstile/internal/config"
	"github.com/turnstile-gql/turnstile/internal/logging"
	"github.com/turnstile-gql/turnstile/internal/xdg"
)

const serviceName = "turnstile"

// NewRootCmd creates the root command for the turnstile CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil, nil)
}

func newRootCmd(serveDeps *ServeDeps, migrateDeps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turnstile",
		Short: "Turnstile - GraphQL authentication and field authorization",
		Long: `Turnstile serves the credential lifecycle of a GraphQL API (login,
registration, logout, password reset) and enforces @canAccess role
requirements on schema fields.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: $XDG_CONFIG_HOME/turnstile/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(serveDeps))
	cmd.AddCommand(NewMigrateCmd(migrateDeps))
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// loadConfig reads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, oops.Code(config.CodeInvalid).Wrap(err)
	}
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the process logger, writing to the command's error
// stream.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
