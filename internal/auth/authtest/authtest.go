// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package authtest provides in-memory auth stores for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

// Users is an in-memory auth.UserRepository enforcing email and username
// uniqueness at write time.
type Users struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.User
}

// NewUsers creates an empty Users store.
func NewUsers() *Users {
	return &Users{byID: make(map[ulid.ULID]auth.User)}
}

// Create stores a copy of user.
func (s *Users) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email {
			return auth.ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return auth.ErrDuplicateUsername
		}
	}
	s.byID[user.ID] = *user
	return nil
}

// GetByID returns a copy of the user with id.
func (s *Users) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

// GetByEmail returns a copy of the user with email.
func (s *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.find(func(u auth.User) bool { return u.Email == email })
}

// GetByUsername returns a copy of the user with username.
func (s *Users) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.find(func(u auth.User) bool { return u.Username == username })
}

// UpdatePasswordHash replaces the stored hash.
func (s *Users) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	s.byID[id] = u
	return nil
}

// Put stores user without uniqueness checks, overwriting any entry with the same ID.
func (s *Users) Put(user auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[user.ID] = user
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Users) find(match func(auth.User) bool) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if match(u) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Tokens is an in-memory auth.TokenRepository.
type Tokens struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.AccessToken
}

// NewTokens creates an empty Tokens store.
func NewTokens() *Tokens {
	return &Tokens{byID: make(map[ulid.ULID]auth.AccessToken)}
}

// Create stores a copy of token.
func (s *Tokens) Create(_ context.Context, token *auth.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[token.ID] = *token
	return nil
}

// GetByID returns a copy of the token with id.
func (s *Tokens) GetByID(_ context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &t, nil
}

// Touch records last use.
func (s *Tokens) Touch(_ context.Context, id ulid.ULID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.LastUsedAt = &at
	s.byID[id] = t
	return nil
}

// Delete removes one token.
func (s *Tokens) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// DeleteByUser removes every token of userID.
func (s *Tokens) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.byID {
		if t.UserID == userID {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

// CountFor returns how many tokens userID holds.
func (s *Tokens) CountFor(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byID {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// Ledger is an in-memory auth.ResetLedger.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]auth.ResetToken
	maxAge  time.Duration
	clock   func() time.Time
}

// NewLedger creates an empty Ledger. A zero maxAge disables expiry.
func NewLedger(maxAge time.Duration) *Ledger {
	return &Ledger{
		entries: make(map[string]auth.ResetToken),
		maxAge:  maxAge,
		clock:   time.Now,
	}
}

// SetClock overrides the time used for expiry checks.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Upsert replaces the entry for email.
func (l *Ledger) Upsert(_ context.Context, email, tokenHash string, createdAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[email] = auth.ResetToken{Email: email, TokenHash: tokenHash, CreatedAt: createdAt}
	return nil
}

// Find returns the entry when token matches and has not expired.
func (l *Ledger) Find(_ context.Context, email, token string) (*auth.ResetToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[email]
	if !ok || !e.Matches(token) || e.ExpiredAt(l.clock(), l.maxAge) {
		return nil, auth.ErrNotFound
	}
	return &e, nil
}

// Consume removes the entry when token matches it.
func (l *Ledger) Consume(_ context.Context, email, token string) (*auth.ResetToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[email]
	if !ok || !e.Matches(token) {
		return nil, auth.ErrNotFound
	}
	delete(l.entries, email)
	if e.ExpiredAt(l.clock(), l.maxAge) {
		return nil, auth.ErrNotFound
	}
	return &e, nil
}

// DeleteByEmail removes the entry for email.
func (l *Ledger) DeleteByEmail(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, email)
	return nil
}

// DeleteExpired removes entries created before olderThan.
func (l *Ledger) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for email, e := range l.entries {
		if e.CreatedAt.Before(olderThan) {
			delete(l.entries, email)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entry returns the stored entry for email.
func (l *Ledger) Entry(email string) (auth.ResetToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[email]
	return e, ok
}

// PlainHasher is a fast, insecure auth.PasswordHasher for tests.
type PlainHasher struct{}

const plainPrefix = "plain$"

// Hash prefixes the password.
func (PlainHasher) Hash(password string) (string, error) {
	return plainPrefix + password, nil
}

// Verify compares against the prefixed password.
func (PlainHasher) Verify(password, hash string) (bool, error) {
	return hash == plainPrefix+password, nil
}

// NeedsUpgrade is always false.
func (PlainHasher) NeedsUpgrade(string) bool {
	return false
}

// Notification is a message captured by Notifier.
type Notification struct {
	Kind   string
	UserID ulid.ULID
	Domain string
	Token  string
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

// SendVerification records a verification notification.
func (n *Notifier) SendVerification(_ context.Context, user *auth.User, domain string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: "verification", UserID: user.ID, Domain: domain})
	return n.Err
}

// SendPasswordReset records a reset notification.
func (n *Notifier) SendPasswordReset(_ context.Context, token string, user *auth.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: "password_reset", UserID: user.ID, Token: token})
	return n.Err
}

// Sent returns the recorded notifications.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// LastResetToken returns the token of the most recent reset notification.
func (n *Notifier) LastResetToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == "password_reset" {
			return n.sent[i].Token
		}
	}
	return ""
}

// Env wires a Controller over in-memory stores.
type Env struct {
	Users      *Users
	Tokens     *Tokens
	Ledger     *Ledger
	Notifier   *Notifier
	Issuer     *auth.TokenIssuer
	Usernames  *auth.UsernameGenerator
	Controller *auth.Controller
}

// NewEnv builds an Env. It panics on wiring errors, which only occur when
// the constructors' required arguments change.
func NewEnv(opts ...auth.ControllerOption) *Env {
	env := &Env{
		Users:    NewUsers(),
		Tokens:   NewTokens(),
		Ledger:   NewLedger(auth.DefaultResetTokenMaxAge),
		Notifier: &Notifier{},
	}
	var err error
	env.Issuer, err = auth.NewTokenIssuer(env.Tokens, env.Users)
	if err != nil {
		panic(err)
	}
	env.Usernames, err = auth.NewUsernameGenerator(env.Users)
	if err != nil {
		panic(err)
	}
	env.Controller, err = auth.NewController(auth.ControllerConfig{
		Users:     env.Users,
		Tokens:    env.Issuer,
		Ledger:    env.Ledger,
		Usernames: env.Usernames,
		Hasher:    PlainHasher{},
		Notifier:  env.Notifier,
	}, opts...)
	if err != nil {
		panic(err)
	}
	return env
}

// ControllerWithLedger builds a second Controller over the Env's stores
// that reads and writes reset tokens through ledger.
func (e *Env) ControllerWithLedger(ledger auth.ResetLedger, opts ...auth.ControllerOption) *auth.Controller {
	c, err := auth.NewController(auth.ControllerConfig{
		Users:     e.Users,
		Tokens:    e.Issuer,
		Ledger:    ledger,
		Usernames: e.Usernames,
		Hasher:    PlainHasher{},
		Notifier:  e.Notifier,
	}, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// AddUser stores an active user with a PlainHasher hash of password.
func (e *Env) AddUser(email, password, role string) auth.User {
	hash, _ := PlainHasher{}.Hash(password) //nolint:errcheck // never fails
	u := auth.User{
		ID:           ulid.Make(),
		Email:        strings.ToLower(email),
		Username:     strings.ToLower(strings.Split(email, "@")[0]),
		PasswordHash: hash,
		Status:       auth.StatusActive,
		Role:         role,
		Country:      "US",
		Currency:     "USD",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	e.Users.Put(u)
	return u
}
