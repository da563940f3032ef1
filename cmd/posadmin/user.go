// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/internal/auth/postgres"
	"github.com/sistemapos/posadmin/internal/config"
	"github.com/sistemapos/posadmin/internal/logging"
)

// NewUserCmd creates the user command group.
func NewUserCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back-office users",
	}
	cmd.AddCommand(newUserCreateCmd(deps))
	cmd.AddCommand(newUserPasswdCmd(deps))
	cmd.AddCommand(newUserActiveCmd(deps, "activate", true))
	cmd.AddCommand(newUserActiveCmd(deps, "deactivate", false))
	return cmd
}

type createUserFlags struct {
	email    string
	role     string
	fullName string
	branchID int64
}

func newUserCreateCmd(deps Deps) *cobra.Command {
	var f createUserFlags
	cmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create a user; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, deps, func(ctx context.Context, cfg *config.Config, s *Stores) error {
				username := strings.TrimSpace(args[0])
				if username == "" {
					return oops.Code("INVALID_USERNAME").Errorf("username is required")
				}
				if f.role != auth.RoleAdmin && f.role != auth.RoleSeller {
					cmd.PrintErrf("warning: role %q grants no permissions\n", f.role)
				}

				password, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				salt, digest, err := hashPassword(cfg, password)
				if err != nil {
					return err
				}

				nu := postgres.NewUser{
					Username:     username,
					Role:         f.role,
					FullName:     f.fullName,
					Salt:         salt,
					PasswordHash: digest,
				}
				if f.email != "" {
					email := f.email
					nu.Email = &email
				}
				if f.branchID > 0 {
					branch := f.branchID
					nu.BranchID = &branch
				}

				id, err := s.Users.Create(ctx, nu)
				if err != nil {
					return err
				}
				cmd.Printf("Created user %q with id %d\n", username, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.email, "email", "", "login email")
	cmd.Flags().StringVar(&f.role, "role", auth.RoleSeller, "role (admin or seller)")
	cmd.Flags().StringVar(&f.fullName, "full-name", "", "display name")
	cmd.Flags().Int64Var(&f.branchID, "branch-id", 0, "branch the user belongs to (0 = none)")
	return cmd
}

func newUserPasswdCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd USERNAME|EMAIL",
		Short: "Replace a user's password with a PBKDF2 hash; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, deps, func(ctx context.Context, cfg *config.Config, s *Stores) error {
				user, err := findUser(ctx, s.Users, args[0])
				if err != nil {
					return err
				}
				password, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				salt, digest, err := hashPassword(cfg, password)
				if err != nil {
					return err
				}
				if err := s.Users.UpdatePassword(ctx, user.ID, salt, digest); err != nil {
					return err
				}
				cmd.Printf("Password updated for %q\n", user.Username)
				return nil
			})
		},
	}
}

// newUserActiveCmd builds activate and deactivate. Deactivation takes effect
// on the user's next request because session validation checks the flag.
func newUserActiveCmd(deps Deps, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " USERNAME|EMAIL",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, deps, func(ctx context.Context, _ *config.Config, s *Stores) error {
				user, err := findUser(ctx, s.Users, args[0])
				if err != nil {
					return err
				}
				if err := s.Users.SetActive(ctx, user.ID, active); err != nil {
					return err
				}
				cmd.Printf("User %q %sd\n", user.Username, use)
				return nil
			})
		},
	}
}

// withStores loads the configuration, opens the repositories and runs fn.
func withStores(cmd *cobra.Command, deps Deps, fn func(ctx context.Context, cfg *config.Config, s *Stores) error) error {
	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cmd.ErrOrStderr())

	ctx := cmd.Context()
	stores, err := deps.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(ctx, cfg, stores)
}

func findUser(ctx context.Context, users userStore, identifier string) (*auth.User, error) {
	user, err := users.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("identifier", identifier).Errorf("no user matches %q", identifier)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// readPassword reads the first line of r. The line is used as-is apart from
// its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(password) == "" {
		return "", oops.Code(auth.CodeEmptyPassword).Errorf("password is required on stdin")
	}
	return password, nil
}

func hashPassword(cfg *config.Config, password string) (salt, digest string, err error) {
	hasher := auth.NewPBKDF2Hasher(cfg.Password.Iterations)
	salt, err = hasher.GenerateSalt()
	if err != nil {
		return "", "", err
	}
	digest, err = hasher.Hash(password, salt)
	if err != nil {
		return "", "", err
	}
	return salt, digest, nil
}
