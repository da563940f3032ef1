// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/internal/auth/authtest"
	"github.com/sistemapos/posadmin/internal/auth/mocks"
	"github.com/sistemapos/posadmin/pkg/errutil"
)

var ctxBG = context.Background()

var httpsApp = auth.RequestContext{Host: "app.example.com", Protocol: "https"}

// recorder captures outcomes passed to auth.Recorder.
type recorder struct {
	mu      sync.Mutex
	logins  []string
	probes  []string
	logouts int
}

func (r *recorder) LoginAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, result)
}

func (r *recorder) SessionProbe(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, result)
}

func (r *recorder) Logout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts++
}

type fixture struct {
	users    *authtest.MemoryUsers
	sessions *authtest.MemorySessions
	clock    *authtest.Clock
	hasher   *auth.PBKDF2Hasher
	rec      *recorder
	logs     *bytes.Buffer
	svc      *auth.Service
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		users:  authtest.NewMemoryUsers(),
		clock:  authtest.NewClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)),
		hasher: fastHasher(),
		rec:    &recorder{},
		logs:   &bytes.Buffer{},
	}
	f.sessions = authtest.NewMemorySessions(f.users, f.clock.Now)
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithRecorder(f.rec),
		auth.WithSessionTTL(time.Hour),
	}
	svc, err := auth.NewAuthService(f.users, f.sessions, f.hasher, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// addUser stores a user whose password hashes with the fixture hasher.
func (f *fixture) addUser(t *testing.T, username, password, role string, active bool) int64 {
	t.Helper()
	salt, err := f.hasher.GenerateSalt()
	require.NoError(t, err)
	digest, err := f.hasher.Hash(password, salt)
	require.NoError(t, err)
	email := username + "@example.com"
	return f.users.Add(auth.User{
		Email:        &email,
		Username:     username,
		Role:         role,
		FullName:     username,
		Salt:         salt,
		PasswordHash: digest,
		Active:       active,
	})
}

func TestNewAuthService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       auth.UserRepository
		sessions    auth.SessionStore
		hasher      auth.CredentialHasher
		expectError string
	}{
		{
			name:        "nil users repository",
			sessions:    mocks.NewMockSessionStore(t),
			hasher:      mocks.NewMockCredentialHasher(t),
			expectError: "users repository is required",
		},
		{
			name:        "nil session store",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockCredentialHasher(t),
			expectError: "session store is required",
		},
		{
			name:        "nil credential hasher",
			users:       mocks.NewMockUserRepository(t),
			sessions:    mocks.NewMockSessionStore(t),
			expectError: "credential hasher is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.users, tt.sessions, tt.hasher)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewAuthService_Defaults(t *testing.T) {
	svc, err := auth.NewAuthService(authtest.NewMemoryUsers(), mocks.NewMockSessionStore(t), fastHasher(),
		auth.WithSessionTTL(-time.Second), auth.WithLogger(nil), auth.WithRecorder(nil))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultSessionTTL, svc.SessionTTL())
}

func TestAuthService_Login(t *testing.T) {
	t.Run("success by username issues session and cookie", func(t *testing.T) {
		f := newFixture(t)
		id := f.addUser(t, "ana", "s3cret", auth.RoleSeller, true)

		res, err := f.svc.Login(ctxBG, "ana", "s3cret", httpsApp)
		require.NoError(t, err)
		assert.Equal(t, id, res.User.ID)
		assert.Equal(t, auth.PermissionsFor(auth.RoleSeller), res.User.Perms)
		assert.Len(t, res.SessionID, 64)
		assert.Equal(t, res.SessionID, res.Cookie.Value)
		assert.Equal(t,
			"sid="+res.SessionID+"; HttpOnly; Path=/; SameSite=Lax; Secure; Domain=app.example.com; Max-Age=3600",
			res.Cookie.String())
		assert.Equal(t, 1, f.sessions.Len())
		assert.Equal(t, []string{auth.ResultSuccess}, f.rec.logins)
	})

	t.Run("success by email is case insensitive", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "s3cret", auth.RoleAdmin, true)

		res, err := f.svc.Login(ctxBG, "  ANA@Example.com ", "s3cret", httpsApp)
		require.NoError(t, err)
		assert.True(t, res.User.Perms.All)
	})

	t.Run("missing identifier or password is input error", func(t *testing.T) {
		f := newFixture(t)
		for _, tc := range []struct{ id, pw string }{{"", "x"}, {"ana", ""}, {"   ", "x"}, {"ana", "   "}} {
			_, err := f.svc.Login(ctxBG, tc.id, tc.pw, httpsApp)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
			assert.Equal(t, auth.KindInput, auth.Classify(err))
		}
		assert.Zero(t, f.sessions.Len())
	})

	t.Run("unknown user, inactive user and wrong password are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "active", "right", auth.RoleSeller, true)
		f.addUser(t, "inactive", "right", auth.RoleSeller, false)

		_, errUnknown := f.svc.Login(ctxBG, "ghost", "right", httpsApp)
		_, errInactive := f.svc.Login(ctxBG, "inactive", "right", httpsApp)
		_, errWrong := f.svc.Login(ctxBG, "active", "wrong", httpsApp)

		for _, err := range []error{errUnknown, errInactive, errWrong} {
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
			assert.Equal(t, auth.KindAuthentication, auth.Classify(err))
		}
		assert.Equal(t, errWrong.Error(), errInactive.Error())
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
		assert.Zero(t, f.sessions.Len(), "failed logins persist nothing")

		// The distinguishing reason only appears server side.
		assert.Contains(t, f.logs.String(), "inactive_user")
		assert.Contains(t, f.logs.String(), "unknown_user")
		assert.Contains(t, f.logs.String(), "bad_password")
		errutil.AssertNoLeak(t, errInactive, "inactive", "active")
		errutil.AssertNoLeak(t, errUnknown, "ghost", "unknown")
	})

	t.Run("unknown user still runs verification", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionStore(t)
		hasher := mocks.NewMockCredentialHasher(t)
		svc, err := auth.NewAuthService(users, sessions, hasher, auth.WithLegacyFallback(false))
		require.NoError(t, err)

		users.On("FindByIdentifier", ctxBG, "ghost").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "pw", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, nil).Once()

		_, err = svc.Login(ctxBG, "ghost", "pw", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("user with incomplete credential is rejected after verification", func(t *testing.T) {
		f := newFixture(t)
		f.users.Add(auth.User{Username: "half", Role: auth.RoleSeller, Active: true, Salt: "abcd"})

		_, err := f.svc.Login(ctxBG, "half", "anything", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		assert.Contains(t, f.logs.String(), "incomplete_credential")
	})

	t.Run("user lookup failure is store unavailable without leaking cause", func(t *testing.T) {
		f := newFixture(t)
		f.users.FindErr = errors.New("dial tcp 10.0.0.5:5432: connection refused")

		_, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
		assert.Equal(t, auth.KindStoreUnavailable, auth.Classify(err))
		errutil.AssertNoLeak(t, err, "dial tcp", "10.0.0.5", "connection refused")
		assert.Contains(t, f.logs.String(), "connection refused")
		assert.Equal(t, []string{auth.ResultStoreError}, f.rec.logins)
	})

	t.Run("session create failure persists nothing and is store unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "s3cret", auth.RoleSeller, true)
		f.sessions.CreateErr = errors.New("pq: relation sessions does not exist")

		res, err := f.svc.Login(ctxBG, "ana", "s3cret", httpsApp)
		assert.Nil(t, res)
		errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
		errutil.AssertNoLeak(t, err, "relation", "sessions")
		assert.Zero(t, f.sessions.Len())
	})

	t.Run("hasher error is internal", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionStore(t)
		hasher := mocks.NewMockCredentialHasher(t)
		svc, err := auth.NewAuthService(users, sessions, hasher)
		require.NoError(t, err)

		user := &auth.User{ID: 1, Username: "ana", Salt: "aa", PasswordHash: "bb", Active: true}
		users.On("FindByIdentifier", ctxBG, "ana").Return(user, nil)
		hasher.On("Verify", "pw", "aa", "bb").Return(false, errors.New("kdf exploded"))

		_, err = svc.Login(ctxBG, "ana", "pw", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
		assert.Equal(t, auth.KindInternal, auth.Classify(err))
		errutil.AssertNoLeak(t, err, "kdf")
	})

	t.Run("cross site login sets SameSite None", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "s3cret", auth.RoleSeller, true)
		rc := auth.RequestContext{Origin: "https://admin.example.org", Host: "api.example.com", Protocol: "https"}

		res, err := f.svc.Login(ctxBG, "ana", "s3cret", rc)
		require.NoError(t, err)
		assert.Equal(t, auth.SameSiteNone, res.Cookie.SameSite)
		assert.True(t, res.Cookie.Secure)
		assert.Equal(t, "api.example.com", res.Cookie.Domain)
	})
}

func TestAuthService_Login_LegacyHash(t *testing.T) {
	addLegacy := func(f *fixture) int64 {
		return f.users.Add(auth.User{
			Username:     "old",
			Role:         auth.RoleSeller,
			Salt:         vectorSalt,
			PasswordHash: vectorLegacy,
			Active:       true,
		})
	}

	t.Run("legacy digest is accepted once and upgraded", func(t *testing.T) {
		f := newFixture(t, auth.WithLegacyFallback(true))
		id := addLegacy(f)

		_, err := f.svc.Login(ctxBG, "old", "secret", httpsApp)
		require.NoError(t, err)

		stored, ok := f.users.Get(id)
		require.True(t, ok)
		assert.NotEqual(t, vectorLegacy, stored.PasswordHash)
		assert.NotEqual(t, vectorSalt, stored.Salt)
		valid, err := f.hasher.Verify("secret", stored.Salt, stored.PasswordHash)
		require.NoError(t, err)
		assert.True(t, valid, "upgraded digest verifies with PBKDF2")
		assert.False(t, auth.VerifyLegacySHA256("secret", stored.Salt, stored.PasswordHash))
	})

	t.Run("legacy digest is rejected when fallback disabled", func(t *testing.T) {
		f := newFixture(t, auth.WithLegacyFallback(false))
		id := addLegacy(f)

		_, err := f.svc.Login(ctxBG, "old", "secret", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		stored, _ := f.users.Get(id)
		assert.Equal(t, vectorLegacy, stored.PasswordHash)
	})

	t.Run("failed upgrade does not fail login", func(t *testing.T) {
		f := newFixture(t, auth.WithLegacyFallback(true))
		id := addLegacy(f)
		f.users.UpdateErr = errors.New("read-only transaction")

		res, err := f.svc.Login(ctxBG, "old", "secret", httpsApp)
		require.NoError(t, err)
		assert.Equal(t, id, res.User.ID)
		assert.Contains(t, f.logs.String(), "legacy hash upgrade: persist failed")
	})

	t.Run("wrong password against legacy digest is rejected", func(t *testing.T) {
		f := newFixture(t, auth.WithLegacyFallback(true))
		addLegacy(f)

		_, err := f.svc.Login(ctxBG, "old", "nope", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})
}

func TestAuthService_Login_WorkFactorUpgrade(t *testing.T) {
	// newService stores "ana" with digest and serves logins with hasher.
	newService := func(t *testing.T, hasher *auth.PBKDF2Hasher, digest string) (*auth.Service, *authtest.MemoryUsers, *bytes.Buffer, int64) {
		t.Helper()
		users := authtest.NewMemoryUsers()
		id := users.Add(auth.User{
			Username:     "ana",
			Role:         auth.RoleSeller,
			Salt:         vectorSalt,
			PasswordHash: digest,
			Active:       true,
		})
		logs := &bytes.Buffer{}
		svc, err := auth.NewAuthService(users, authtest.NewMemorySessions(users, nil), hasher,
			auth.WithLogger(slog.New(slog.NewJSONHandler(logs, nil))))
		require.NoError(t, err)
		return svc, users, logs, id
	}

	t.Run("digest below configured iterations is re-hashed", func(t *testing.T) {
		hasher := auth.NewPBKDF2Hasher(20_000)
		svc, users, logs, id := newService(t, hasher, stored10k)

		_, err := svc.Login(ctxBG, "ana", "secret", httpsApp)
		require.NoError(t, err)

		stored, ok := users.Get(id)
		require.True(t, ok)
		iterations, _, err := auth.ParsePBKDF2Digest(stored.PasswordHash)
		require.NoError(t, err)
		assert.Equal(t, 20_000, iterations)
		assert.NotEqual(t, vectorSalt, stored.Salt)
		assert.False(t, hasher.NeedsUpgrade(stored.PasswordHash))
		assert.Contains(t, logs.String(), "work factor upgrade")

		_, err = svc.Login(ctxBG, "ana", "secret", httpsApp)
		require.NoError(t, err, "re-hashed credential still logs in")
	})

	t.Run("default-cost digest survives a raised setting", func(t *testing.T) {
		svc, users, _, id := newService(t, auth.NewPBKDF2Hasher(200_000), vectorDigest100k)

		_, err := svc.Login(ctxBG, "ana", "secret", httpsApp)
		require.NoError(t, err)

		stored, _ := users.Get(id)
		iterations, _, err := auth.ParsePBKDF2Digest(stored.PasswordHash)
		require.NoError(t, err)
		assert.Equal(t, 200_000, iterations)
	})

	t.Run("digest at or above configured iterations is kept", func(t *testing.T) {
		svc, users, _, id := newService(t, fastHasher(), stored10k)

		_, err := svc.Login(ctxBG, "ana", "secret", httpsApp)
		require.NoError(t, err)

		stored, _ := users.Get(id)
		assert.Equal(t, stored10k, stored.PasswordHash)
		assert.Equal(t, vectorSalt, stored.Salt)
	})

	t.Run("failed re-hash does not fail login", func(t *testing.T) {
		svc, users, logs, id := newService(t, auth.NewPBKDF2Hasher(20_000), stored10k)
		users.UpdateErr = errors.New("read-only transaction")

		res, err := svc.Login(ctxBG, "ana", "secret", httpsApp)
		require.NoError(t, err)
		assert.Equal(t, id, res.User.ID)
		assert.Contains(t, logs.String(), "work factor upgrade: persist failed")
	})

	t.Run("wrong password never triggers a re-hash", func(t *testing.T) {
		svc, users, _, id := newService(t, auth.NewPBKDF2Hasher(20_000), stored10k)

		_, err := svc.Login(ctxBG, "ana", "nope", httpsApp)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		stored, _ := users.Get(id)
		assert.Equal(t, stored10k, stored.PasswordHash)
	})
}

func TestAuthService_Probe(t *testing.T) {
	t.Run("valid session returns principal with perms", func(t *testing.T) {
		f := newFixture(t)
		id := f.addUser(t, "boss", "pw", auth.RoleAdmin, true)
		res, err := f.svc.Login(ctxBG, "boss", "pw", httpsApp)
		require.NoError(t, err)

		p, err := f.svc.Probe(ctxBG, res.SessionID)
		require.NoError(t, err)
		assert.Equal(t, id, p.User.ID)
		assert.True(t, p.Can(auth.CapabilitySettings))
		assert.Equal(t, res.SessionID, p.SessionID)
	})

	t.Run("missing and invalid ids are both session errors", func(t *testing.T) {
		f := newFixture(t)

		_, errMissing := f.svc.Probe(ctxBG, "")
		_, errInvalid := f.svc.Probe(ctxBG, "deadbeef")

		errutil.AssertErrorCode(t, errMissing, auth.CodeSessionMissing)
		errutil.AssertErrorCode(t, errInvalid, auth.CodeSessionInvalid)
		assert.Equal(t, auth.KindSession, auth.Classify(errMissing))
		assert.Equal(t, auth.KindSession, auth.Classify(errInvalid))
		assert.Equal(t, errMissing.Error(), errInvalid.Error())
		assert.Equal(t, []string{auth.ResultMissing, auth.ResultInvalid}, f.rec.probes)
	})

	t.Run("session expires exactly at ttl", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "pw", auth.RoleSeller, true)
		res, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		require.NoError(t, err)

		f.clock.Advance(time.Hour - time.Second)
		_, err = f.svc.Probe(ctxBG, res.SessionID)
		require.NoError(t, err)

		f.clock.Advance(time.Second)
		_, err = f.svc.Probe(ctxBG, res.SessionID)
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
	})

	t.Run("deactivating a user invalidates existing sessions", func(t *testing.T) {
		f := newFixture(t)
		id := f.addUser(t, "ana", "pw", auth.RoleSeller, true)
		res, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		require.NoError(t, err)

		writes := f.sessions.Writes
		f.users.SetActive(id, false)
		_, err = f.svc.Probe(ctxBG, res.SessionID)
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
		assert.Equal(t, writes, f.sessions.Writes, "no session rows touched")
	})

	t.Run("store outage degrades to unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.ValidateErr = errors.New("connection reset by peer")

		_, err := f.svc.Probe(ctxBG, "abc")
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
		errutil.AssertNoLeak(t, err, "connection reset")
		assert.Contains(t, f.logs.String(), "connection reset by peer")
		assert.Equal(t, []string{auth.ResultStoreError}, f.rec.probes)
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Run("logout then probe is unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "pw", auth.RoleSeller, true)
		res, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		require.NoError(t, err)

		cookie := f.svc.Logout(ctxBG, res.SessionID, httpsApp)
		assert.Equal(t, 0, cookie.MaxAge)
		assert.Equal(t, res.Cookie.Domain, cookie.Domain)
		assert.Equal(t, res.Cookie.SameSite, cookie.SameSite)
		assert.Equal(t, res.Cookie.Secure, cookie.Secure)

		_, err = f.svc.Probe(ctxBG, res.SessionID)
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
	})

	t.Run("logout of unknown or empty id still clears cookie", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{"", "not-a-session"} {
			cookie := f.svc.Logout(ctxBG, id, httpsApp)
			assert.Equal(t, "sid=; HttpOnly; Path=/; SameSite=Lax; Secure; Domain=app.example.com; Max-Age=0", cookie.String())
		}
		assert.Equal(t, 2, f.rec.logouts)
	})

	t.Run("store failure does not prevent clearing cookie", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.DeleteErr = errors.New("timeout")

		cookie := f.svc.Logout(ctxBG, "abc", auth.RequestContext{Host: "localhost:3000", Protocol: "http"})
		assert.Equal(t, "sid=; HttpOnly; Path=/; SameSite=Lax; Max-Age=0", cookie.String())
		assert.Contains(t, f.logs.String(), "session delete failed during logout")
	})
}

func TestAuthService_PurgeExpired(t *testing.T) {
	t.Run("removes only expired sessions", func(t *testing.T) {
		f := newFixture(t)
		f.addUser(t, "ana", "pw", auth.RoleSeller, true)
		_, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Hour)
		fresh, err := f.svc.Login(ctxBG, "ana", "pw", httpsApp)
		require.NoError(t, err)

		n, err := f.svc.PurgeExpired(ctxBG)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, f.sessions.Len())

		_, err = f.svc.Probe(ctxBG, fresh.SessionID)
		assert.NoError(t, err)
	})

	t.Run("store failure is store unavailable", func(t *testing.T) {
		sessions := mocks.NewMockSessionStore(t)
		svc, err := auth.NewAuthService(authtest.NewMemoryUsers(), sessions, fastHasher())
		require.NoError(t, err)
		sessions.On("DeleteExpired", ctxBG).Return(int64(0), errors.New("boom"))

		_, err = svc.PurgeExpired(ctxBG)
		errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
	})
}
