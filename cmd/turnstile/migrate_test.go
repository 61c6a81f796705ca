// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-gql/turnstile/internal/config"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	pending []uint
	applied []uint
	err     error

	calls  []string
	steps  int
	forced int
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	if m.err != nil {
		return m.err
	}
	if len(m.pending) > 0 {
		m.version = m.pending[len(m.pending)-1]
	}
	return nil
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return m.err
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return m.err
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.forced = v
	m.version = uint(v)
	m.dirty = false
	return m.err
}

func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return m.applied, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var gotURL string
	deps := &MigrateDeps{MigratorFactory: func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}}
	cmd := newRootCmd(nil, deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"migrate", "--database-url=postgres://localhost/turnstile"}, args...))
	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, "postgres://localhost/turnstile", gotURL)
		assert.True(t, m.closed, "migrator not closed")
	}
	return out.String(), err
}

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1, 2, 3}}
	out, err := runMigrate(t, m, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.Contains(t, out, "Applied 3 migration(s)")
	assert.Contains(t, out, "Version: 000003_password_resets")
}

func TestMigrate_DefaultsToUp(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1}}
	_, err := runMigrate(t, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, m.calls)
}

func TestMigrate_UpNothingPending(t *testing.T) {
	m := &fakeMigrator{version: 3}
	out, err := runMigrate(t, m, "up")
	require.NoError(t, err)
	assert.Empty(t, m.calls)
	assert.Contains(t, out, "No pending migrations")
}

func TestMigrate_UpFailure(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1}, err: errors.New("syntax error at line 3")}
	_, err := runMigrate(t, m, "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "migrate up")
}

func TestMigrate_Down(t *testing.T) {
	m := &fakeMigrator{version: 3}
	out, err := runMigrate(t, m, "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, m.calls)
	assert.Contains(t, out, "All migrations rolled back")
}

func TestMigrate_Steps(t *testing.T) {
	m := &fakeMigrator{version: 2}
	_, err := runMigrate(t, m, "steps", "--", "-1")
	require.NoError(t, err)
	assert.Equal(t, -1, m.steps)
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{version: 2, dirty: true}
	out, err := runMigrate(t, m, "force", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.forced)
	assert.Contains(t, out, "Version: 000001_users")
	assert.NotContains(t, out, "dirty")
}

func TestMigrate_Version(t *testing.T) {
	tests := []struct {
		name string
		m    *fakeMigrator
		want string
	}{
		{name: "none applied", m: &fakeMigrator{}, want: "Version: none"},
		{name: "clean", m: &fakeMigrator{version: 2}, want: "Version: 000002_access_tokens"},
		{name: "dirty", m: &fakeMigrator{version: 2, dirty: true}, want: "Version: 000002_access_tokens (dirty)"},
		{name: "unknown version", m: &fakeMigrator{version: 99}, want: "Version: 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runMigrate(t, tt.m, "version")
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestMigrate_Status(t *testing.T) {
	m := &fakeMigrator{applied: []uint{1}, pending: []uint{2, 3}}
	out, err := runMigrate(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied  000001_users")
	assert.Contains(t, out, "pending  000002_access_tokens")
	assert.Contains(t, out, "pending  000003_password_resets")
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd(nil, &MigrateDeps{MigratorFactory: func(string) (Migrator, error) {
		t.Fatal("migrator opened without a database URL")
		return nil, nil
	}})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "up"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, config.CodeInvalid)
	errutil.AssertErrorContext(t, err, "key", "database.url")
}

func TestMigrate_FactoryFailure(t *testing.T) {
	cmd := newRootCmd(nil, &MigrateDeps{MigratorFactory: func(string) (Migrator, error) {
		return nil, errors.New("connection refused")
	}})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "up", "--database-url", "postgres://localhost/turnstile"})

	errutil.AssertErrorCode(t, cmd.Execute(), "DB_CONNECT_FAILED")
}

func TestParseVersionArg(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "positive", input: "3", want: 3},
		{name: "zero", input: "0", want: 0},
		{name: "negative", input: "-2", want: -2},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "3abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersionArg(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
