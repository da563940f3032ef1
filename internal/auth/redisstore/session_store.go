// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package redisstore keeps sessions in Redis with server-side expiry.
// Users still live in PostgreSQL; each validation re-reads the owner so a
// deactivated user loses access on the next request.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/auth"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "posadmin:sid:"

// UserLookup loads the owner of a session.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// SessionStore implements auth.SessionStore on Redis. Each session is one
// key holding the user id, with the session TTL as the key TTL.
type SessionStore struct {
	client redis.Cmdable
	users  UserLookup
	prefix string
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) {
		s.prefix = prefix
	}
}

// New creates a SessionStore.
func New(client redis.Cmdable, users UserLookup, opts ...Option) *SessionStore {
	s := &SessionStore{client: client, users: users, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create stores a new session that Redis expires after ttl.
func (s *SessionStore) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.Code("SESSION_CREATE_FAILED").With("ttl", ttl).Errorf("session ttl must be positive")
	}
	id, err := auth.GenerateSessionID()
	if err != nil {
		return "", err
	}
	// NX: a collision with a live id must never hand over its session.
	ok, err := s.client.SetNX(ctx, s.key(id), strconv.FormatInt(userID, 10), ttl).Result()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session key").
			With("user_id", userID).
			Wrap(err)
	}
	if !ok {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("user_id", userID).
			Errorf("session id collision")
	}
	return id, nil
}

// Validate returns the active owner of a live session, or (nil, nil). The
// key is checked again after the owner is loaded, so a session deleted
// between the two reads is reported as gone.
func (s *SessionStore) Validate(ctx context.Context, sessionID string) (*auth.User, error) {
	key := s.key(sessionID)
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session key").
			Wrap(err)
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "load session owner").
			With("user_id", userID).
			Wrap(err)
	}
	if user == nil || !user.Active {
		return nil, nil
	}

	live, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "recheck session key").
			Wrap(err)
	}
	if live == 0 {
		return nil, nil
	}
	return user, nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session key").
			Wrap(err)
	}
	return nil
}

// DeleteExpired always reports zero: Redis evicts expired keys itself.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// Ping checks the connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("operation", "ping redis").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
