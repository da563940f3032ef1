// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/auth"
)

// schemaStatements create the sessions table when migrations have not run.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_exp ON sessions (expires_at)`,
}

// SessionRepository implements auth.SessionStore using PostgreSQL.
type SessionRepository struct {
	pool   poolIface
	now    func() time.Time
	logger *slog.Logger
	ready  atomic.Bool
}

// SessionOption configures a SessionRepository.
type SessionOption func(*SessionRepository)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) SessionOption {
	return func(r *SessionRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSessionLogger sets the logger used for schema bootstrap messages.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(r *SessionRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface, opts ...SessionOption) *SessionRepository {
	r := &SessionRepository{
		pool:   pool,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureSchema creates the sessions table and indexes if they are missing.
// Concurrent callers may race on creation; the losers' errors are benign and
// swallowed. After the first success it is a no-op.
func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			if isBenignSchemaRace(err) {
				r.logger.DebugContext(ctx, "sessions schema already created concurrently", "error", err)
				continue
			}
			return oops.Code("SESSION_SCHEMA_FAILED").
				With("operation", "ensure sessions schema").
				Wrap(err)
		}
	}
	r.ready.Store(true)
	return nil
}

// Create inserts a session for userID that expires ttl from now.
func (r *SessionRepository) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id, err := auth.GenerateSessionID()
	if err != nil {
		return "", err
	}
	expiresAt := r.now().Add(ttl)

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, id, userID, expiresAt)
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", userID).
			Wrap(err)
	}
	return id, nil
}

// Validate returns the active owner of an unexpired session, or (nil, nil).
// Expiry and the active flag are checked in the same query, so deactivating
// a user invalidates their sessions without touching the sessions table.
func (r *SessionRepository) Validate(ctx context.Context, sessionID string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.username, u.role, u.branch_id, u.full_name, u.salt, u.password_hash, u.active
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.expires_at > $2 AND u.active
	`, sessionID, r.now())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "validate session").
			Wrap(err)
	}
	return user, nil
}

// Delete removes a session. Unknown ids are ignored.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all sessions whose expiry has passed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func isBenignSchemaRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.DuplicateTable, pgerrcode.DuplicateObject:
		return true
	default:
		return false
	}
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionRepository)(nil)
