// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

// cleanupT is the subset of testing.TB the constructors need.
type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// userOrNil extracts a *auth.User return value that may be nil.
func userOrNil(v any) *auth.User {
	u, _ := v.(*auth.User)
	return u
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t cleanupT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks auth.UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID mocks auth.UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByEmail mocks auth.UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByUsername mocks auth.UserRepository.GetByUsername.
func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	args := m.Called(ctx, username)
	return userOrNil(args.Get(0)), args.Error(1)
}

// UpdatePasswordHash mocks auth.UserRepository.UpdatePasswordHash.
func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// MockTokenRepository is a mock of auth.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// NewMockTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockTokenRepository(t cleanupT) *MockTokenRepository {
	m := &MockTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks auth.TokenRepository.Create.
func (m *MockTokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// GetByID mocks auth.TokenRepository.GetByID.
func (m *MockTokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	args := m.Called(ctx, id)
	tok, _ := args.Get(0).(*auth.AccessToken)
	return tok, args.Error(1)
}

// Touch mocks auth.TokenRepository.Touch.
func (m *MockTokenRepository) Touch(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// Delete mocks auth.TokenRepository.Delete.
func (m *MockTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// DeleteByUser mocks auth.TokenRepository.DeleteByUser.
func (m *MockTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1) //nolint:errcheck,forcetypeassert // mock contract
}

// MockResetLedger is a mock of auth.ResetLedger.
type MockResetLedger struct {
	mock.Mock
}

// NewMockResetLedger creates a mock that asserts its expectations on cleanup.
func NewMockResetLedger(t cleanupT) *MockResetLedger {
	m := &MockResetLedger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Upsert mocks auth.ResetLedger.Upsert.
func (m *MockResetLedger) Upsert(ctx context.Context, email, tokenHash string, createdAt time.Time) error {
	args := m.Called(ctx, email, tokenHash, createdAt)
	return args.Error(0)
}

// Find mocks auth.ResetLedger.Find.
func (m *MockResetLedger) Find(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	args := m.Called(ctx, email, token)
	rt, _ := args.Get(0).(*auth.ResetToken)
	return rt, args.Error(1)
}

// Consume mocks auth.ResetLedger.Consume.
func (m *MockResetLedger) Consume(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	args := m.Called(ctx, email, token)
	rt, _ := args.Get(0).(*auth.ResetToken)
	return rt, args.Error(1)
}

// DeleteByEmail mocks auth.ResetLedger.DeleteByEmail.
func (m *MockResetLedger) DeleteByEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// DeleteExpired mocks auth.ResetLedger.DeleteExpired.
func (m *MockResetLedger) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1) //nolint:errcheck,forcetypeassert // mock contract
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t cleanupT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks auth.PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify mocks auth.PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade mocks auth.PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a mock that asserts its expectations on cleanup.
func NewMockNotifier(t cleanupT) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SendVerification mocks auth.Notifier.SendVerification.
func (m *MockNotifier) SendVerification(ctx context.Context, user *auth.User, domain string) error {
	args := m.Called(ctx, user, domain)
	return args.Error(0)
}

// SendPasswordReset mocks auth.Notifier.SendPasswordReset.
func (m *MockNotifier) SendPasswordReset(ctx context.Context, token string, user *auth.User) error {
	args := m.Called(ctx, token, user)
	return args.Error(0)
}

// MockTokenService is a mock of auth.TokenService.
type MockTokenService struct {
	mock.Mock
}

// NewMockTokenService creates a mock that asserts its expectations on cleanup.
func NewMockTokenService(t cleanupT) *MockTokenService {
	m := &MockTokenService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Mint mocks auth.TokenService.Mint.
func (m *MockTokenService) Mint(ctx context.Context, userID ulid.ULID, clientLabel string) (string, error) {
	args := m.Called(ctx, userID, clientLabel)
	return args.String(0), args.Error(1)
}

// Revoke mocks auth.TokenService.Revoke.
func (m *MockTokenService) Revoke(ctx context.Context, tokenID ulid.ULID) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

// RevokeAll mocks auth.TokenService.RevokeAll.
func (m *MockTokenService) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1) //nolint:errcheck,forcetypeassert // mock contract
}

// Compile-time interface checks.
var (
	_ auth.UserRepository  = (*MockUserRepository)(nil)
	_ auth.TokenRepository = (*MockTokenRepository)(nil)
	_ auth.ResetLedger     = (*MockResetLedger)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
	_ auth.Notifier        = (*MockNotifier)(nil)
	_ auth.TokenService    = (*MockTokenService)(nil)
)
