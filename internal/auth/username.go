// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Generated username constraints.
const (
	MinGeneratedUsernameLength = 8
	MaxGeneratedUsernameLength = 12
	DefaultUsernameAttempts    = 10

	usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	usernameBackoff  = time.Millisecond
)

// errUsernameTaken marks a collision that should trigger a redraw.
var errUsernameTaken = errors.New("username taken")

// UsernameSource draws a candidate username.
type UsernameSource func() (string, error)

// UsernameGenerator produces usernames that are free at the time of the check.
// The check is advisory; the store's unique constraint is authoritative.
type UsernameGenerator struct {
	users       UserRepository
	maxAttempts int
	source      UsernameSource
}

// UsernameOption configures a UsernameGenerator.
type UsernameOption func(*UsernameGenerator)

// WithMaxAttempts caps how many candidates are drawn before giving up.
func WithMaxAttempts(n int) UsernameOption {
	return func(g *UsernameGenerator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithUsernameSource replaces the random candidate source.
func WithUsernameSource(src UsernameSource) UsernameOption {
	return func(g *UsernameGenerator) {
		if src != nil {
			g.source = src
		}
	}
}

// NewUsernameGenerator creates a UsernameGenerator.
func NewUsernameGenerator(users UserRepository, opts ...UsernameOption) (*UsernameGenerator, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	g := &UsernameGenerator{
		users:       users,
		maxAttempts: DefaultUsernameAttempts,
		source:      RandomUsername,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// MaxAttempts returns the attempt cap.
func (g *UsernameGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate draws candidates until one is not taken. Lookup failures are not
// retried. Exhausting the attempt cap returns a StorageError.
func (g *UsernameGenerator) Generate(ctx context.Context) (string, error) {
	var username string
	attempts := 0

	backoff := retry.WithMaxRetries(uint64(g.maxAttempts-1), retry.NewConstant(usernameBackoff)) //nolint:gosec // maxAttempts > 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		candidate, err := g.source()
		if err != nil {
			return err
		}
		_, err = g.users.GetByUsername(ctx, candidate)
		switch {
		case errors.Is(err, ErrNotFound):
			username = candidate
			return nil
		case err != nil:
			return StorageError("check username", err)
		default:
			return retry.RetryableError(errUsernameTaken)
		}
	})
	if errors.Is(err, errUsernameTaken) {
		return "", oops.Code(CodeStorage).
			With("operation", "generate username").
			With("attempts", attempts).
			Errorf("no free username after %d attempts", attempts)
	}
	if err != nil {
		return "", err //nolint:wrapcheck // already coded
	}
	return username, nil
}

// RandomUsername draws a lowercase alphanumeric string whose length is
// uniform in [MinGeneratedUsernameLength, MaxGeneratedUsernameLength].
func RandomUsername() (string, error) {
	span := big.NewInt(MaxGeneratedUsernameLength - MinGeneratedUsernameLength + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", oops.Code("USERNAME_GENERATE_FAILED").Wrap(err)
	}
	length := MinGeneratedUsernameLength + int(n.Int64())

	alphabet := big.NewInt(int64(len(usernameAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", oops.Code("USERNAME_GENERATE_FAILED").Wrap(err)
		}
		buf[i] = usernameAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
