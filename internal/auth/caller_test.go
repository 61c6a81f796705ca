// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

func TestMainDomainPart(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"brand.com", "brand"},
		{"www.brand.com", "brand"},
		{"api.eu.Brand.com:8443", "brand"},
		{"brand.com.", "brand"},
		{"localhost", "localhost"},
		{"localhost:8080", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.MainDomainPart(tt.host))
		})
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, auth.CallerFromContext(ctx))

	var anon *auth.Caller
	assert.False(t, anon.Authenticated())

	caller := &auth.Caller{Host: "brand.com"}
	ctx = auth.WithCaller(ctx, caller)
	assert.Same(t, caller, auth.CallerFromContext(ctx))
	assert.False(t, caller.Authenticated())

	caller.User = &auth.User{Email: "a@x.com"}
	caller.Token = &auth.AccessToken{}
	assert.True(t, caller.Authenticated())
}
