// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/auth/authtest"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

func TestNewResolver_RequiresDependencies(t *testing.T) {
	env := authtest.NewEnv()

	_, err := NewResolver(nil, env.Users)
	require.Error(t, err)

	_, err = NewResolver(env.Controller, nil)
	require.Error(t, err)
}

func TestResolver_HandlersCoverSchema(t *testing.T) {
	env := authtest.NewEnv()
	r, err := NewResolver(env.Controller, env.Users)
	require.NoError(t, err)
	schema, err := LoadSchema()
	require.NoError(t, err)

	handlers := r.Handlers()
	for _, root := range []string{"Query", "Mutation"} {
		for _, f := range schema.Types[root].Fields {
			if f.Name[0] == '_' {
				continue
			}
			assert.Contains(t, handlers, fieldKey(root, f.Name))
		}
	}
}

func TestUserObject_FieldValue(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	user := &auth.User{
		ID:           ulid.Make(),
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "secret-hash",
		Status:       "banned",
		Role:         "user",
		Country:      "FR",
		Currency:     "EUR",
		CreatedAt:    created,
	}
	obj := userObject{user}

	tests := []struct {
		field string
		want  any
	}{
		{"id", user.ID.String()},
		{"email", "alice@example.com"},
		{"username", "alice"},
		{"role", "user"},
		{"status", "banned"},
		{"country", "FR"},
		{"currency", "EUR"},
		{"createdAt", "2026-03-01T11:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, err := obj.FieldValue(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := obj.FieldValue("passwordHash")
	errutil.AssertErrorCode(t, err, access.CodeConfiguration)
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"input": map[string]any{"email": "a@x.com", "n": 3}}

	in := inputArg(args)
	assert.Equal(t, "a@x.com", stringArg(in, "email"))
	assert.Empty(t, stringArg(in, "n"))
	assert.Empty(t, stringArg(in, "missing"))
	assert.Nil(t, inputArg(map[string]any{}))
	assert.Empty(t, stringArg(nil, "email"))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc|def", "abc|def", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer    ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := bearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
