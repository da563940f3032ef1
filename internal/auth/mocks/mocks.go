// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sistemapos/posadmin/internal/auth"
)

// MockCredentialHasher is a mock of auth.CredentialHasher.
type MockCredentialHasher struct {
	mock.Mock
}

// NewMockCredentialHasher creates a mock that asserts its expectations at cleanup.
func NewMockCredentialHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialHasher {
	m := &MockCredentialHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// GenerateSalt mocks auth.CredentialHasher.GenerateSalt.
func (m *MockCredentialHasher) GenerateSalt() (string, error) {
	ret := m.Called()
	return ret.String(0), ret.Error(1)
}

// Hash mocks auth.CredentialHasher.Hash.
func (m *MockCredentialHasher) Hash(password, salt string) (string, error) {
	ret := m.Called(password, salt)
	return ret.String(0), ret.Error(1)
}

// Verify mocks auth.CredentialHasher.Verify.
func (m *MockCredentialHasher) Verify(password, salt, digest string) (bool, error) {
	ret := m.Called(password, salt, digest)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade mocks auth.CredentialHasher.NeedsUpgrade.
func (m *MockCredentialHasher) NeedsUpgrade(digest string) bool {
	ret := m.Called(digest)
	return ret.Bool(0)
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations at cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByIdentifier mocks auth.UserRepository.FindByIdentifier.
func (m *MockUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	ret := m.Called(ctx, identifier)
	var u *auth.User
	if v := ret.Get(0); v != nil {
		u = v.(*auth.User)
	}
	return u, ret.Error(1)
}

// UpdatePassword mocks auth.UserRepository.UpdatePassword.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, salt, passwordHash string) error {
	ret := m.Called(ctx, id, salt, passwordHash)
	return ret.Error(0)
}

// MockSessionStore is a mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock that asserts its expectations at cleanup.
func NewMockSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks auth.SessionStore.Create.
func (m *MockSessionStore) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	ret := m.Called(ctx, userID, ttl)
	return ret.String(0), ret.Error(1)
}

// Validate mocks auth.SessionStore.Validate.
func (m *MockSessionStore) Validate(ctx context.Context, sessionID string) (*auth.User, error) {
	ret := m.Called(ctx, sessionID)
	var u *auth.User
	if v := ret.Get(0); v != nil {
		u = v.(*auth.User)
	}
	return u, ret.Error(1)
}

// Delete mocks auth.SessionStore.Delete.
func (m *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	ret := m.Called(ctx, sessionID)
	return ret.Error(0)
}

// DeleteExpired mocks auth.SessionStore.DeleteExpired.
func (m *MockSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	ret := m.Called(ctx)
	var n int64
	if v := ret.Get(0); v != nil {
		n = v.(int64)
	}
	return n, ret.Error(1)
}

var (
	_ auth.CredentialHasher = (*MockCredentialHasher)(nil)
	_ auth.UserRepository   = (*MockUserRepository)(nil)
	_ auth.SessionStore     = (*MockSessionStore)(nil)
)
