// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package authtest provides in-memory user and session stores for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sistemapos/posadmin/internal/auth"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MemoryUsers is a UserRepository backed by a map.
type MemoryUsers struct {
	mu     sync.RWMutex
	users  map[int64]*auth.User
	nextID int64

	// FindErr, when set, is returned by FindByIdentifier.
	FindErr error
	// UpdateErr, when set, is returned by UpdatePassword.
	UpdateErr error
}

// NewMemoryUsers creates an empty user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[int64]*auth.User)}
}

// Add stores a copy of u, assigning an id when u.ID is zero, and returns the id.
func (m *MemoryUsers) Add(u auth.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		m.nextID++
		u.ID = m.nextID
	} else if u.ID > m.nextID {
		m.nextID = u.ID
	}
	m.users[u.ID] = &u
	return u.ID
}

// SetActive flips the active flag of a user.
func (m *MemoryUsers) SetActive(id int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Active = active
	}
}

// Get returns a copy of the stored user.
func (m *MemoryUsers) Get(id int64) (auth.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, false
	}
	return *u, true
}

// FindByIdentifier implements auth.UserRepository.
func (m *MemoryUsers) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byEmail := auth.IsEmailIdentifier(identifier)
	for _, u := range m.users {
		if byEmail {
			if u.Email != nil && strings.EqualFold(*u.Email, identifier) {
				userCopy := *u
				return &userCopy, nil
			}
			continue
		}
		if strings.EqualFold(u.Username, identifier) {
			userCopy := *u
			return &userCopy, nil
		}
	}
	return nil, auth.ErrNotFound
}

// UpdatePassword implements auth.UserRepository.
func (m *MemoryUsers) UpdatePassword(_ context.Context, id int64, salt, passwordHash string) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Salt, u.PasswordHash = salt, passwordHash
	return nil
}

// lookup is used by MemorySessions to join against users.
func (m *MemoryUsers) lookup(id int64) (auth.User, bool) {
	return m.Get(id)
}

// MemorySessions is a SessionStore that joins against a MemoryUsers.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]auth.Session
	users    *MemoryUsers
	clock    func() time.Time

	// Writes counts Create, Delete and DeleteExpired calls that mutated state.
	Writes int

	// CreateErr, ValidateErr and DeleteErr, when set, are returned by the
	// corresponding method.
	CreateErr   error
	ValidateErr error
	DeleteErr   error
}

// NewMemorySessions creates a session store. A nil clock uses time.Now.
func NewMemorySessions(users *MemoryUsers, clock func() time.Time) *MemorySessions {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySessions{
		sessions: make(map[string]auth.Session),
		users:    users,
		clock:    clock,
	}
}

// Create implements auth.SessionStore.
func (m *MemorySessions) Create(_ context.Context, userID int64, ttl time.Duration) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	id, err := auth.GenerateSessionID()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = auth.Session{ID: id, UserID: userID, ExpiresAt: m.clock().Add(ttl)}
	m.Writes++
	return id, nil
}

// Validate implements auth.SessionStore.
func (m *MemorySessions) Validate(_ context.Context, sessionID string) (*auth.User, error) {
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.IsExpiredAt(m.clock()) {
		return nil, nil
	}
	u, ok := m.users.lookup(s.UserID)
	if !ok || !u.Active {
		return nil, nil
	}
	return &u, nil
}

// Delete implements auth.SessionStore.
func (m *MemorySessions) Delete(_ context.Context, sessionID string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		m.Writes++
	}
	return nil
}

// DeleteExpired implements auth.SessionStore.
func (m *MemorySessions) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	var n int64
	for id, s := range m.sessions {
		if s.IsExpiredAt(now) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.Writes++
	}
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Verify interfaces are satisfied.
var (
	_ auth.UserRepository = (*MemoryUsers)(nil)
	_ auth.SessionStore   = (*MemorySessions)(nil)
)
