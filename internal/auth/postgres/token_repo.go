// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool poolIface
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Create stores a new access token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO access_tokens (id, user_id, client_label, token_hash, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.ClientLabel,
		token.TokenHash,
		token.CreatedAt,
		token.LastUsedAt,
	)
	if err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "insert access token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a token by ID.
func (r *TokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, client_label, token_hash, created_at, last_used_at
		FROM access_tokens
		WHERE id = $1
	`, id.String())

	var (
		idStr, userIDStr string
		token            auth.AccessToken
	)
	err := row.Scan(&idStr, &userIDStr, &token.ClientLabel, &token.TokenHash, &token.CreatedAt, &token.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodeStorage).
			With("operation", "get access token").
			With("id", id.String()).
			Wrap(err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	return &token, nil
}

// Touch records the last time a token was presented.
func (r *TokenRepository) Touch(ctx context.Context, id ulid.ULID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE access_tokens SET last_used_at = $2 WHERE id = $1`, id.String(), at)
	if err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "touch access token").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a single token.
func (r *TokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "delete access token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every token owned by a user.
func (r *TokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code(auth.CodeStorage).
			With("operation", "delete access tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
