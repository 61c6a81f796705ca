// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

// recordingT captures failures instead of failing the enclosing test.
type recordingT struct {
	testing.TB
	failed bool
}

func (r *recordingT) Helper()               {}
func (r *recordingT) Errorf(string, ...any) { r.failed = true }
func (r *recordingT) Name() string          { return "recordingT" }

func TestAssertErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		wantPass bool
	}{
		{name: "matching code", err: oops.Code("MY_CODE").Errorf("boom"), code: "MY_CODE", wantPass: true},
		{name: "wrapped coded error", err: oops.Wrapf(oops.Code("MY_CODE").Errorf("boom"), "outer"), code: "MY_CODE", wantPass: true},
		{name: "other code", err: oops.Code("OTHER").Errorf("boom"), code: "MY_CODE"},
		{name: "plain error", err: errors.New("boom"), code: "MY_CODE"},
		{name: "nil error", err: nil, code: "MY_CODE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			passed := errutil.AssertErrorCode(rec, tt.err, tt.code)
			assert.Equal(t, tt.wantPass, passed)
			assert.Equal(t, !tt.wantPass, rec.failed)
		})
	}
}

func TestAssertErrorContext(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantPass bool
	}{
		{name: "matching value", err: oops.With("user_id", "123").Errorf("boom"), wantPass: true},
		{name: "other value", err: oops.With("user_id", "456").Errorf("boom")},
		{name: "missing key", err: oops.With("email", "a@x.com").Errorf("boom")},
		{name: "plain error", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			passed := errutil.AssertErrorContext(rec, tt.err, "user_id", "123")
			assert.Equal(t, tt.wantPass, passed)
			assert.Equal(t, !tt.wantPass, rec.failed)
		})
	}
}
