// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Session configuration.
const (
	SessionIDBytes    = 32             // 32 bytes = 64 hex chars
	DefaultSessionTTL = 24 * time.Hour // used when the service is built without WithSessionTTL
)

// Session binds an opaque id to a user until ExpiresAt.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the session is no longer valid at t.
// A session is valid only while t is strictly before ExpiresAt.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionID returns a new unguessable session id, hex encoded.
func GenerateSessionID() (string, error) {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionIDBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionStore persists sessions.
type SessionStore interface {
	// Create issues a session for userID that expires ttl from now and
	// returns its id.
	Create(ctx context.Context, userID int64, ttl time.Duration) (string, error)

	// Validate returns the owning user of a live session. It returns
	// (nil, nil) when the session does not exist, has expired, or belongs to
	// an inactive user. A non-nil error means the store itself failed.
	Validate(ctx context.Context, sessionID string) (*User, error)

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteExpired removes expired sessions and returns how many were deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
