// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/auth/authtest"
	"github.com/turnstile-gql/turnstile/internal/auth/mocks"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

func TestGenerateAccessToken(t *testing.T) {
	id := ulid.Make()

	token, hash, err := auth.GenerateAccessToken(id)
	require.NoError(t, err)

	prefix, secret, found := strings.Cut(token, "|")
	require.True(t, found)
	assert.Equal(t, id.String(), prefix)
	assert.Len(t, secret, auth.AccessTokenBytes*2)
	assert.Equal(t, auth.HashToken(token), hash)
	assert.NotContains(t, hash, secret)

	other, _, err := auth.GenerateAccessToken(id)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestNewTokenIssuer_NilDependencies(t *testing.T) {
	_, err := auth.NewTokenIssuer(nil, mocks.NewMockUserRepository(t))
	assert.ErrorContains(t, err, "token repository is required")

	_, err = auth.NewTokenIssuer(mocks.NewMockTokenRepository(t), nil)
	assert.ErrorContains(t, err, "user repository is required")
}

func TestTokenIssuer_MintAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv()
	user := env.AddUser("a@x.com", "longenough1", "admin")

	token, err := env.Issuer.Mint(ctx, user.ID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, tok, err := env.Issuer.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "admin", got.Role)
	assert.Equal(t, auth.DefaultClientLabel, tok.ClientLabel)
	assert.NotEqual(t, token, tok.TokenHash)

	stored, err := env.Tokens.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUsedAt, "authenticate records last use")
}

func TestTokenIssuer_Authenticate_Rejects(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv()
	user := env.AddUser("a@x.com", "longenough1", auth.DefaultRole)
	valid, err := env.Issuer.Mint(ctx, user.ID, "web")
	require.NoError(t, err)
	id, _, _ := strings.Cut(valid, "|")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "abcdef"},
		{"bad id", "not-a-ulid|secret"},
		{"empty secret", id + "|"},
		{"unknown id", ulid.Make().String() + "|secret"},
		{"wrong secret", id + "|" + strings.Repeat("0", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, tok, err := env.Issuer.Authenticate(ctx, tt.token)
			assert.Nil(t, u)
			assert.Nil(t, tok)
			errutil.AssertErrorCode(t, err, auth.CodeNotAuthenticated)
		})
	}
}

func TestTokenIssuer_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("mint failure is a storage error", func(t *testing.T) {
		tokens := mocks.NewMockTokenRepository(t)
		issuer, err := auth.NewTokenIssuer(tokens, mocks.NewMockUserRepository(t))
		require.NoError(t, err)
		tokens.On("Create", mock.Anything, mock.AnythingOfType("*auth.AccessToken")).Return(errors.New("insert failed"))

		_, err = issuer.Mint(ctx, ulid.Make(), "web")
		errutil.AssertErrorCode(t, err, auth.CodeStorage)
	})

	t.Run("zero user id is rejected", func(t *testing.T) {
		issuer, err := auth.NewTokenIssuer(mocks.NewMockTokenRepository(t), mocks.NewMockUserRepository(t))
		require.NoError(t, err)

		_, err = issuer.Mint(ctx, ulid.ULID{}, "web")
		errutil.AssertErrorCode(t, err, "TOKEN_INVALID_USER")
	})

	t.Run("lookup failure is a storage error", func(t *testing.T) {
		tokens := mocks.NewMockTokenRepository(t)
		issuer, err := auth.NewTokenIssuer(tokens, mocks.NewMockUserRepository(t))
		require.NoError(t, err)
		id := ulid.Make()
		tokens.On("GetByID", mock.Anything, id).Return(nil, errors.New("timeout"))

		_, _, err = issuer.Authenticate(ctx, id.String()+"|secret")
		errutil.AssertErrorCode(t, err, auth.CodeStorage)
	})

	t.Run("revoke passes through not found", func(t *testing.T) {
		tokens := mocks.NewMockTokenRepository(t)
		issuer, err := auth.NewTokenIssuer(tokens, mocks.NewMockUserRepository(t))
		require.NoError(t, err)
		id := ulid.Make()
		tokens.On("Delete", mock.Anything, id).Return(auth.ErrNotFound)

		err = issuer.Revoke(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke all failure is a storage error", func(t *testing.T) {
		tokens := mocks.NewMockTokenRepository(t)
		issuer, err := auth.NewTokenIssuer(tokens, mocks.NewMockUserRepository(t))
		require.NoError(t, err)
		userID := ulid.Make()
		tokens.On("DeleteByUser", mock.Anything, userID).Return(int64(0), errors.New("timeout"))

		_, err = issuer.RevokeAll(ctx, userID)
		errutil.AssertErrorCode(t, err, auth.CodeStorage)
	})
}
