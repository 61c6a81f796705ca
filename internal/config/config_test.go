// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "ignored by Load")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnstile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.Playground)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, BackendPostgres, cfg.Reset.Backend)
	assert.Equal(t, time.Hour, cfg.Reset.MaxAge)
	assert.Equal(t, "@every 15m", cfg.Reset.PurgeSchedule)
	assert.Equal(t, 10, cfg.Auth.UsernameMaxAttempts)
	assert.True(t, cfg.Auth.EmailCaseInsensitive)
	assert.Equal(t, "web", cfg.Auth.ClientLabel)
	assert.Empty(t, cfg.Database.URL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
log:
  format: text
server:
  addr: 127.0.0.1:9999
  playground: false
database:
  url: postgres://file/db
  max_conns: 8
reset:
  backend: redis
  max_age: 30m
auth:
  email_case_insensitive: false
redis:
  url: redis://file:6379/0
`)

	cfg, err := Load(path, newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.False(t, cfg.Server.Playground)
	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, BackendRedis, cfg.Reset.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Reset.MaxAge)
	assert.False(t, cfg.Auth.EmailCaseInsensitive)
	assert.Equal(t, "redis://file:6379/0", cfg.Redis.URL)
	// Keys absent from the file keep the flag defaults.
	assert.Equal(t, "web", cfg.Auth.ClientLabel)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ChangedFlagsOverrideFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  addr: 127.0.0.1:9999\nreset:\n  max_age: 30m\n")

	cfg, err := Load(path, newFlags(t, "--server-addr=:7070", "--reset-max-age=0", "--client-label=cli"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Zero(t, cfg.Reset.MaxAge)
	assert.Equal(t, "cli", cfg.Auth.ClientLabel)
}

func TestLoad_EnvironmentFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379/0")

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379/0", cfg.Redis.URL)

	cfg, err = Load("", newFlags(t, "--database-url=postgres://flag/db"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), newFlags(t))
	errutil.AssertErrorCode(t, err, CodeInvalid)

	_, err = Load(writeFile(t, "server: [unclosed"), newFlags(t))
	errutil.AssertErrorCode(t, err, CodeInvalid)

	_, err = Load(writeFile(t, "reset:\n  max_age: soon\n"), newFlags(t))
	errutil.AssertErrorCode(t, err, CodeInvalid)
}

func TestLoad_NilFlagSet(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, "server:\n  addr: :1\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, ":1", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		clearEnv(t)
		cfg, err := Load("", newFlags(t))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"server addr empty", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"server addr no port", func(c *Config) { c.Server.Addr = "localhost" }, "server.addr"},
		{"metrics addr", func(c *Config) { c.Metrics.Addr = "nope" }, "metrics.addr"},
		{"max conns", func(c *Config) { c.Database.MaxConns = -1 }, "database.max_conns"},
		{"backend", func(c *Config) { c.Reset.Backend = "memcached" }, "reset.backend"},
		{"redis without url", func(c *Config) { c.Reset.Backend = BackendRedis }, "redis.url"},
		{"negative max age", func(c *Config) { c.Reset.MaxAge = -time.Second }, "reset.max_age"},
		{"bad schedule", func(c *Config) { c.Reset.PurgeSchedule = "whenever" }, "reset.purge_schedule"},
		{"attempts", func(c *Config) { c.Auth.UsernameMaxAttempts = 0 }, "auth.username_max_attempts"},
		{"client label", func(c *Config) { c.Auth.ClientLabel = "" }, "auth.client_label"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, CodeInvalid)
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}

	t.Run("schedule ignored without expiry", func(t *testing.T) {
		cfg := valid()
		cfg.Reset.MaxAge = 0
		cfg.Reset.PurgeSchedule = "whenever"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("metrics disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Metrics.Addr = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	errutil.AssertErrorContext(t, cfg.RequireDatabase(), "key", "database.url")

	cfg.Database.URL = "postgres://x/y"
	assert.NoError(t, cfg.RequireDatabase())
}
