// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Access token configuration.
const (
	AccessTokenBytes = 32 // 32 bytes = 64 hex chars
	tokenSeparator   = "|"
)

// DefaultClientLabel is the client label attached to tokens minted by login.
const DefaultClientLabel = "web"

// AccessToken is an opaque bearer credential bound to one user.
type AccessToken struct {
	ID          ulid.ULID
	UserID      ulid.ULID
	ClientLabel string
	TokenHash   string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// TokenRepository manages access token persistence.
type TokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *AccessToken) error

	// GetByID retrieves a token by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*AccessToken, error)

	// Touch records the time a token was last presented.
	Touch(ctx context.Context, id ulid.ULID, at time.Time) error

	// Delete removes a single token. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes every token owned by a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}

// GenerateAccessToken creates a plaintext token for id and its hash.
// The plaintext has the form "<id>|<secret>"; only the hash of the full
// plaintext is stored.
func GenerateAccessToken(id ulid.ULID) (token, hash string, err error) {
	secret := make([]byte, AccessTokenBytes)
	if _, err = rand.Read(secret); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", AccessTokenBytes).
			Wrap(err)
	}
	token = id.String() + tokenSeparator + hex.EncodeToString(secret)
	return token, HashToken(token), nil
}

// HashToken computes the hex SHA-256 of a plaintext token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// verifyTokenHash compares in constant time.
func verifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// parseAccessToken extracts the token ID from a plaintext token.
func parseAccessToken(token string) (ulid.ULID, bool) {
	idPart, secret, found := strings.Cut(token, tokenSeparator)
	if !found || secret == "" {
		return ulid.ULID{}, false
	}
	id, err := ulid.Parse(idPart)
	if err != nil {
		return ulid.ULID{}, false
	}
	return id, true
}

// TokenIssuer mints, authenticates and revokes access tokens.
type TokenIssuer struct {
	tokens TokenRepository
	users  UserRepository
	logger *slog.Logger
	clock  func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithIssuerLogger sets the logger used for best-effort failures.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *TokenIssuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIssuerClock overrides the time source for token timestamps.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(tokens TokenRepository, users UserRepository, opts ...IssuerOption) (*TokenIssuer, error) {
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	i := &TokenIssuer{
		tokens: tokens,
		users:  users,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Mint creates a token for userID labelled with the client it was issued to
// and returns the plaintext. The plaintext is not recoverable afterwards.
func (i *TokenIssuer) Mint(ctx context.Context, userID ulid.ULID, clientLabel string) (string, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if clientLabel == "" {
		clientLabel = DefaultClientLabel
	}

	id := ulid.Make()
	plaintext, hash, err := GenerateAccessToken(id)
	if err != nil {
		return "", err
	}

	token := &AccessToken{
		ID:          id,
		UserID:      userID,
		ClientLabel: clientLabel,
		TokenHash:   hash,
		CreatedAt:   i.clock(),
	}
	if err := i.tokens.Create(ctx, token); err != nil {
		return "", StorageError("create access token", err)
	}
	return plaintext, nil
}

// Authenticate resolves a plaintext bearer token to its owner.
// Unknown, malformed or mismatched tokens yield NotAuthenticated.
func (i *TokenIssuer) Authenticate(ctx context.Context, plaintext string) (*User, *AccessToken, error) {
	id, ok := parseAccessToken(plaintext)
	if !ok {
		return nil, nil, ErrNotAuthenticated()
	}

	token, err := i.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotAuthenticated()
		}
		return nil, nil, StorageError("get access token", err)
	}
	if !verifyTokenHash(plaintext, token.TokenHash) {
		return nil, nil, ErrNotAuthenticated()
	}

	user, err := i.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotAuthenticated()
		}
		return nil, nil, StorageError("get token owner", err)
	}

	if err := i.tokens.Touch(ctx, token.ID, i.clock()); err != nil {
		i.logger.WarnContext(ctx, "failed to record token use",
			"token_id", token.ID.String(),
			"error", err)
	}
	return user, token, nil
}

// Revoke deletes a single token. Returns ErrNotFound if it was already gone.
func (i *TokenIssuer) Revoke(ctx context.Context, tokenID ulid.ULID) error {
	if err := i.tokens.Delete(ctx, tokenID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err //nolint:wrapcheck // sentinel passthrough
		}
		return StorageError("delete access token", err)
	}
	return nil
}

// RevokeAll deletes every token owned by userID.
func (i *TokenIssuer) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := i.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, StorageError("delete access tokens by user", err)
	}
	return n, nil
}
