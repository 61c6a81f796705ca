// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultResetTokenMaxAge is how long a reset token stays usable.
const DefaultResetTokenMaxAge = time.Hour

// ResetToken is the live password reset entry for an email.
type ResetToken struct {
	Email     string
	TokenHash string
	CreatedAt time.Time
}

// ExpiredAt reports whether the entry is older than maxAge at now.
// A non-positive maxAge disables expiry.
func (r *ResetToken) ExpiredAt(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(r.CreatedAt) > maxAge
}

// Matches reports whether token is the plaintext for this entry.
func (r *ResetToken) Matches(token string) bool {
	return VerifyResetToken(token, r.TokenHash)
}

// ResetLedger stores at most one live reset token per email.
type ResetLedger interface {
	// Upsert atomically replaces any entry for email with the given hash and timestamp.
	Upsert(ctx context.Context, email, tokenHash string, createdAt time.Time) error

	// Find returns the entry for email if token matches it and it has not
	// expired. Returns ErrNotFound otherwise.
	Find(ctx context.Context, email, token string) (*ResetToken, error)

	// Consume deletes the entry for email only if token matches it, and
	// returns the deleted entry. A mismatched, missing or expired entry
	// yields ErrNotFound; a mismatched entry is left in place. Of several
	// concurrent calls with the same token at most one succeeds.
	Consume(ctx context.Context, email, token string) (*ResetToken, error)

	// DeleteByEmail removes the entry for email. Absence is not an error.
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteExpired removes entries created before olderThan and returns the count.
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// GenerateResetToken creates a random UUIDv4 token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the user; the hash is stored in the ledger.
func GenerateResetToken() (token, hash string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = id.String()
	return token, HashResetToken(token), nil
}

// VerifyResetToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// HashResetToken computes the SHA-256 hash stored for a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
