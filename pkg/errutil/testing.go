// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

// AssertErrorCode fails t unless err carries code. Non-string codes are
// compared by their printed form.
func AssertErrorCode(t testing.TB, err error, code string) bool {
	t.Helper()
	if err == nil {
		return assert.Fail(t, "expected error with code "+code, "got nil")
	}
	return assert.Equal(t, code, Code(err), "error code of %q", err.Error())
}

// AssertErrorContext fails t unless err is an oops error whose context
// holds key with value.
func AssertErrorContext(t testing.TB, err error, key string, value any) bool {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return assert.Fail(t, "expected oops error", "got %T: %v", err, err)
	}
	fields := oopsErr.Context()
	if !assert.Contains(t, fields, key) {
		return false
	}
	return assert.Equal(t, value, fields[key], "context key %q", key)
}
