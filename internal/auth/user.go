// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Status is the lifecycle state of a user account. Values other than the
// declared constants are preserved as stored.
type Status string

// Known account statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// DefaultRole is assigned to newly registered users.
const DefaultRole = "user"

// User is an account that can authenticate.
type User struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string
	Status       Status
	Role         string
	Country      string
	Currency     string
	// DeactivatedAt is set when the user has self-excluded.
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the account status permits login.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// IsDeactivated reports whether the account is self-excluded.
func (u *User) IsDeactivated() bool {
	return u.DeactivatedAt != nil
}

// NewUser creates a validated active User with the default role.
func NewUser(email, username, passwordHash, country, currency string, now time.Time) (*User, error) {
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if username == "" {
		return nil, oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Status:       StatusActive,
		Role:         DefaultRole,
		Country:      country,
		Currency:     currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EmailNormalizer maps an email to the form used for store lookups.
type EmailNormalizer func(string) string

// CaseSensitiveEmails keeps emails as given, apart from surrounding space.
func CaseSensitiveEmails(email string) string {
	return strings.TrimSpace(email)
}

// CaseInsensitiveEmails lowercases emails so lookups ignore case.
func CaseInsensitiveEmails(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail or
	// ErrDuplicateUsername when a unique constraint rejects the row.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// UpdatePasswordHash overwrites a user's password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
