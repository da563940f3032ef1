// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"context"
	"strings"
)

// Known roles. Any other role string is valid data but grants nothing.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// User is a back-office account as stored by the user store.
type User struct {
	ID           int64
	Email        *string
	Username     string
	Role         string
	BranchID     *int64
	FullName     string
	Salt         string
	PasswordHash string
	Active       bool
}

// PublicUser is the sanitized view of a User returned to clients.
// It has no credential fields.
type PublicUser struct {
	ID       int64         `json:"id"`
	Email    *string       `json:"email"`
	Username string        `json:"username"`
	Role     string        `json:"role"`
	BranchID *int64        `json:"branch_id"`
	FullName string        `json:"full_name"`
	Perms    PermissionSet `json:"perms"`
}

// Public projects the user into its client-safe form with permissions attached.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
		BranchID: u.BranchID,
		FullName: u.FullName,
		Perms:    PermissionsFor(u.Role),
	}
}

// IsEmailIdentifier reports whether a login identifier should be matched
// against the email column rather than the username column.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// UserRepository reads users and updates their credentials.
type UserRepository interface {
	// FindByIdentifier looks a user up by email (identifier contains "@") or
	// username, case-insensitively. Returns ErrNotFound if nothing matches.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	// UpdatePassword replaces the salt and hash of a user.
	UpdatePassword(ctx context.Context, id int64, salt, passwordHash string) error
}
