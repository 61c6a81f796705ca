// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

// ResetLedger implements auth.ResetLedger using the password_resets table,
// which has email as its primary key.
type ResetLedger struct {
	pool   poolIface
	maxAge time.Duration
	clock  func() time.Time
}

// LedgerOption configures a ResetLedger.
type LedgerOption func(*ResetLedger)

// WithLedgerClock overrides the time source used for expiry checks.
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(l *ResetLedger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewResetLedger creates a ResetLedger. Entries older than maxAge are not
// returned by Find; a non-positive maxAge disables expiry.
func NewResetLedger(pool poolIface, maxAge time.Duration, opts ...LedgerOption) *ResetLedger {
	l := &ResetLedger{pool: pool, maxAge: maxAge, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upsert replaces any entry for email in a single statement.
func (l *ResetLedger) Upsert(ctx context.Context, email, tokenHash string, createdAt time.Time) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO password_resets (email, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at
	`, email, tokenHash, createdAt)
	if err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "upsert password reset").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// Find returns the entry for email when token matches and has not expired.
func (l *ResetLedger) Find(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT email, token_hash, created_at
		FROM password_resets
		WHERE email = $1
	`, email)

	var entry auth.ResetToken
	err := row.Scan(&entry.Email, &entry.TokenHash, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodeStorage).
			With("operation", "get password reset").
			With("email", email).
			Wrap(err)
	}

	if !entry.Matches(token) {
		return nil, oops.Code("RESET_TOKEN_MISMATCH").With("email", email).Wrap(auth.ErrNotFound)
	}
	if entry.ExpiredAt(l.clock(), l.maxAge) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").
			With("email", email).
			With("created_at", entry.CreatedAt).
			Wrap(auth.ErrNotFound)
	}
	return &entry, nil
}

// Consume deletes the entry for email when its hash matches token. The
// delete is conditional on the hash, so a token replaced by a newer Upsert
// is never removed and a token is consumed by at most one caller. An
// expired entry is still deleted but reported as not found.
func (l *ResetLedger) Consume(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	row := l.pool.QueryRow(ctx, `
		DELETE FROM password_resets
		WHERE email = $1 AND token_hash = $2
		RETURNING email, token_hash, created_at
	`, email, auth.HashResetToken(token))

	var entry auth.ResetToken
	err := row.Scan(&entry.Email, &entry.TokenHash, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodeStorage).
			With("operation", "consume password reset").
			With("email", email).
			Wrap(err)
	}
	if entry.ExpiredAt(l.clock(), l.maxAge) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").
			With("email", email).
			With("created_at", entry.CreatedAt).
			Wrap(auth.ErrNotFound)
	}
	return &entry, nil
}

// DeleteByEmail removes the entry for email, if any.
func (l *ResetLedger) DeleteByEmail(ctx context.Context, email string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, email)
	if err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "delete password reset").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes entries created before olderThan.
func (l *ResetLedger) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := l.pool.Exec(ctx, `DELETE FROM password_resets WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, oops.Code(auth.CodeStorage).
			With("operation", "delete expired password resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
