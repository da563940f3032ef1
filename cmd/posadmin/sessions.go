// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sistemapos/posadmin/internal/config"
)

// NewSessionsCmd creates the sessions command group.
func NewSessionsCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		Long: `Delete expired session rows. Expired sessions are already rejected at
validation time; this only reclaims space.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStores(cmd, deps, func(ctx context.Context, _ *config.Config, s *Stores) error {
				n, err := s.Sessions.DeleteExpired(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Deleted %d expired session(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}
