// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sistemapos/posadmin/internal/config"
)

// NewRootCmd creates the root command for the posadmin CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "posadmin",
		Short: "posadmin - back-office API for the POS system",
		Long: `posadmin serves session-based authentication for the POS admin
web app and provides tools to manage its users, sessions and schema.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewSessionsCmd(deps))
	cmd.AddCommand(NewConfigCmd(deps))

	return cmd
}

// loadConfig reads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command, deps Deps) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags(), deps.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
