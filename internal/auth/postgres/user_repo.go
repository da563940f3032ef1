// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/auth"
)

const userColumns = `id, email, username, role, branch_id, full_name, salt, password_hash, active`

// ErrDuplicateUser is returned by Create when the username or email is taken.
var ErrDuplicateUser = errors.New("user already exists")

// NewUser holds the fields needed to insert a user.
type NewUser struct {
	Email        *string
	Username     string
	Role         string
	BranchID     *int64
	FullName     string
	Salt         string
	PasswordHash string
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByIdentifier looks up a user by email when the identifier contains "@",
// otherwise by username. Both comparisons are case-insensitive.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	column := "username"
	if auth.IsEmailIdentifier(identifier) {
		column = "email"
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(`+column+`) = lower($1) LIMIT 1`,
		identifier)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user by "+column).
			Wrap(err)
	}
	return user, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

// Create inserts a user and returns its id.
func (r *UserRepository) Create(ctx context.Context, u NewUser) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, role, branch_id, full_name, salt, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id
	`, u.Email, u.Username, u.Role, u.BranchID, u.FullName, u.Salt, u.PasswordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, oops.Code("USER_DUPLICATE").
				With("username", u.Username).
				Wrap(ErrDuplicateUser)
		}
		return 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", u.Username).
			Wrap(err)
	}
	return id, nil
}

// UpdatePassword replaces the salt and password hash of a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, salt, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET salt = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $1
	`, id, salt, passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetActive enables or disables a user. Disabling takes effect on the next
// session validation; existing session rows are left alone.
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET active = $2, updated_at = NOW()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return oops.Code("USER_SET_ACTIVE_FAILED").
			With("operation", "set active").
			With("id", id).
			With("active", active).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.Role,
		&u.BranchID,
		&u.FullName,
		&u.Salt,
		&u.PasswordHash,
		&u.Active,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
