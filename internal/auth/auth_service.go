// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/pkg/errutil"
)

// Outcome labels passed to a Recorder.
const (
	ResultSuccess            = "success"
	ResultInvalidInput       = "invalid_input"
	ResultInvalidCredentials = "invalid_credentials"
	ResultStoreError         = "store_error"
	ResultInternalError      = "internal_error"
	ResultMissing            = "missing"
	ResultInvalid            = "invalid"
)

// Recorder receives authentication outcomes, typically for metrics.
type Recorder interface {
	LoginAttempt(result string)
	SessionProbe(result string)
	Logout()
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string) {}
func (nopRecorder) SessionProbe(string) {}
func (nopRecorder) Logout()             {}

// dummySalt and dummyDigest stand in for a missing or unusable credential so
// that a failed lookup still pays the full PBKDF2 cost. No password hashes
// to an all-zero digest. The service re-encodes dummyDigest at the hasher's
// work factor when the hasher exposes one.
const (
	dummySalt   = "00000000000000000000000000000000"
	dummyDigest = "0000000000000000000000000000000000000000000000000000000000000000"
)

// RequestContext carries the request facts that decide cookie attributes.
type RequestContext struct {
	Origin   string // Origin header, empty when absent
	Host     string // request host, with or without port
	Protocol string // "http" or "https"
}

// CookiePolicy resolves the cookie attributes for this request.
func (rc RequestContext) CookiePolicy() CookiePolicy {
	return ResolveCookiePolicy(rc.Origin, rc.Host, rc.Protocol)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User      PublicUser
	Cookie    CookieDirective
	SessionID string
}

// Principal is the authenticated user behind a validated session.
type Principal struct {
	User      PublicUser
	SessionID string
}

// Can reports whether the principal holds capability c.
func (p *Principal) Can(c Capability) bool {
	return p != nil && p.User.Perms.Has(c)
}

// Service provides login, session probe and logout.
type Service struct {
	users          UserRepository
	sessions       SessionStore
	hasher         CredentialHasher
	logger         *slog.Logger
	recorder       Recorder
	ttl            time.Duration
	legacyFallback bool
	dummyDigest    string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for server-side diagnostics.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionTTL sets the lifetime of issued sessions.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLegacyFallback enables acceptance of legacy sha256(password+salt)
// digests. A match is immediately re-hashed with PBKDF2.
func WithLegacyFallback(enabled bool) ServiceOption {
	return func(s *Service) {
		s.legacyFallback = enabled
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewAuthService creates a Service. All three dependencies are required.
func NewAuthService(users UserRepository, sessions SessionStore, hasher CredentialHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential hasher is required")
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		ttl:      DefaultSessionTTL,
	}
	s.dummyDigest = dummyDigest
	if h, ok := hasher.(interface{ Iterations() int }); ok {
		s.dummyDigest = FormatPBKDF2Digest(h.Iterations(), dummyDigest)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SessionTTL returns the lifetime given to new sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Login verifies credentials and issues a session.
//
// An unknown identifier, an inactive user and a wrong password all produce
// the same AUTH_INVALID_CREDENTIALS error after the same amount of hashing
// work. Nothing is persisted unless the whole login succeeds.
func (s *Service) Login(ctx context.Context, identifier, password string, rc RequestContext) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.TrimSpace(password) == "" {
		s.recorder.LoginAttempt(ResultInvalidInput)
		return nil, oops.Code(CodeInvalidInput).Errorf("username/email and password are required")
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	found := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.recorder.LoginAttempt(ResultStoreError)
			return nil, s.storeUnavailable(ctx, "find user", err)
		}
		found = false
	}
	if user == nil {
		found = false
	}

	salt, digest := dummySalt, s.dummyDigest
	usable := found && user.Salt != "" && user.PasswordHash != ""
	if usable {
		salt, digest = user.Salt, user.PasswordHash
	}

	valid, err := s.hasher.Verify(password, salt, digest)
	if err != nil {
		s.recorder.LoginAttempt(ResultInternalError)
		errutil.LogErrorContext(ctx, s.logger, "password verification failed", err)
		return nil, oops.Code(CodeInternal).Errorf("internal error")
	}

	legacy := false
	if !valid && s.legacyFallback {
		legacy = VerifyLegacySHA256(password, salt, digest)
	}

	if !usable || !user.Active || !(valid || legacy) {
		s.recorder.LoginAttempt(ResultInvalidCredentials)
		s.logger.InfoContext(ctx, "login rejected",
			"reason", rejectReason(found, usable, user),
			"identifier_kind", identifierKind(identifier),
		)
		return nil, errInvalidCredentials()
	}

	switch {
	case legacy:
		s.rehash(ctx, user, password, "legacy hash upgrade")
	case s.hasher.NeedsUpgrade(user.PasswordHash):
		s.rehash(ctx, user, password, "work factor upgrade")
	}

	sessionID, err := s.sessions.Create(ctx, user.ID, s.ttl)
	if err != nil {
		s.recorder.LoginAttempt(ResultStoreError)
		return nil, s.storeUnavailable(ctx, "create session", err)
	}

	s.recorder.LoginAttempt(ResultSuccess)
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID, "role", user.Role)

	return &LoginResult{
		User:      user.Public(),
		Cookie:    NewSessionCookie(sessionID, rc.CookiePolicy(), s.ttl),
		SessionID: sessionID,
	}, nil
}

// Probe resolves a presented session id to its user. A missing id and an
// invalid, expired or unverifiable session are both session errors; a store
// outage degrades to unauthenticated instead of failing the request.
func (s *Service) Probe(ctx context.Context, sessionID string) (*Principal, error) {
	if sessionID == "" {
		s.recorder.SessionProbe(ResultMissing)
		s.logger.DebugContext(ctx, "session probe without session id")
		return nil, oops.Code(CodeSessionMissing).Errorf("not authenticated")
	}

	user, err := s.sessions.Validate(ctx, sessionID)
	if err != nil {
		s.recorder.SessionProbe(ResultStoreError)
		errutil.LogErrorContext(ctx, s.logger, "session validation degraded to unauthenticated", err)
		return nil, oops.Code(CodeSessionInvalid).Errorf("not authenticated")
	}
	if user == nil {
		s.recorder.SessionProbe(ResultInvalid)
		s.logger.DebugContext(ctx, "session probe with invalid or expired session")
		return nil, oops.Code(CodeSessionInvalid).Errorf("not authenticated")
	}

	s.recorder.SessionProbe(ResultSuccess)
	return &Principal{User: user.Public(), SessionID: sessionID}, nil
}

// Logout deletes the session, best effort, and always returns a directive
// that clears the cookie using the same attributes login would have set.
func (s *Service) Logout(ctx context.Context, sessionID string, rc RequestContext) CookieDirective {
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			errutil.LogErrorContext(ctx, s.logger, "session delete failed during logout", err)
		}
	}
	s.recorder.Logout()
	return ExpiredSessionCookie(rc.CookiePolicy())
}

// PurgeExpired physically removes expired sessions. Validation never relies
// on it.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, s.storeUnavailable(ctx, "purge expired sessions", err)
	}
	s.logger.InfoContext(ctx, "expired sessions purged", "deleted", n)
	return n, nil
}

// rehash stores a fresh salt and digest derived with the hasher's current
// settings. Failures are logged; the login that triggered it still succeeds.
func (s *Service) rehash(ctx context.Context, user *User, password, reason string) {
	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, reason+": salt generation failed", err)
		return
	}
	digest, err := s.hasher.Hash(password, salt)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, reason+": hashing failed", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, salt, digest); err != nil {
		errutil.LogErrorContext(ctx, s.logger, reason+": persist failed", err)
		return
	}
	user.Salt, user.PasswordHash = salt, digest
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID, "reason", reason)
}
