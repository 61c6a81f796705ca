// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package config loads turnstile settings from an optional YAML file layered
// under command-line flags.
package config

import (
	"net"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/logging"
)

// CodeInvalid marks configuration that failed to load or validate.
const CodeInvalid = "CONFIG_INVALID"

// Reset ledger backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full service configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Reset    ResetConfig    `koanf:"reset"`
	Auth     AuthConfig     `koanf:"auth"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// ServerConfig controls the GraphQL listener.
type ServerConfig struct {
	Addr       string `koanf:"addr"`
	Playground bool   `koanf:"playground"`
}

// MetricsConfig controls the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig holds the Redis connection used by the redis reset backend.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// ResetConfig controls the password reset ledger.
type ResetConfig struct {
	Backend string `koanf:"backend"`
	// MaxAge is how long a reset token stays valid; 0 disables expiry.
	MaxAge        time.Duration `koanf:"max_age"`
	PurgeSchedule string        `koanf:"purge_schedule"`
}

// AuthConfig tunes the credential flows.
type AuthConfig struct {
	UsernameMaxAttempts  int    `koanf:"username_max_attempts"`
	EmailCaseInsensitive bool   `koanf:"email_case_insensitive"`
	ClientLabel          string `koanf:"client_label"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-format":             "log.format",
	"log-level":              "log.level",
	"server-addr":            "server.addr",
	"playground":             "server.playground",
	"metrics-addr":           "metrics.addr",
	"database-url":           "database.url",
	"database-max-conns":     "database.max_conns",
	"redis-url":              "redis.url",
	"reset-backend":          "reset.backend",
	"reset-max-age":          "reset.max_age",
	"reset-purge-schedule":   "reset.purge_schedule",
	"username-max-attempts":  "auth.username_max_attempts",
	"email-case-insensitive": "auth.email_case_insensitive",
	"client-label":           "auth.client_label",
}

// RegisterFlags adds every configuration flag to fs. Flag defaults are the
// built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("server-addr", ":8080", "GraphQL listen address")
	fs.Bool("playground", true, "serve the GraphQL playground at /")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.Int32("database-max-conns", 0, "maximum pool connections (0 = driver default)")
	fs.String("redis-url", "", "Redis URL for the redis reset backend (default: $REDIS_URL)")
	fs.String("reset-backend", BackendPostgres, "reset token ledger backend (postgres or redis)")
	fs.Duration("reset-max-age", auth.DefaultResetTokenMaxAge, "reset token lifetime (0 = never expires)")
	fs.String("reset-purge-schedule", auth.DefaultPurgeSchedule, "cron schedule for purging expired reset tokens")
	fs.Int("username-max-attempts", auth.DefaultUsernameAttempts, "username candidates tried per registration")
	fs.Bool("email-case-insensitive", true, "lowercase emails before store lookups")
	fs.String("client-label", auth.DefaultClientLabel, "client label recorded on tokens minted by login")
}

// Load reads the YAML file at path, when set, then applies flags from fs.
// A flag left at its default only fills keys the file did not set.
// DATABASE_URL and REDIS_URL fill empty connection URLs.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "read config file")
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "read flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = os.Getenv("REDIS_URL")
	}
	return &cfg, nil
}

// Validate checks the settings every command relies on. Connection URLs are
// checked by the commands that need them.
func (c *Config) Validate() error {
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	if err := validAddr(c.Server.Addr); err != nil {
		return invalid("server.addr", "%v", err)
	}
	if c.Metrics.Addr != "" {
		if err := validAddr(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", "%v", err)
		}
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "must not be negative")
	}

	switch c.Reset.Backend {
	case BackendPostgres:
	case BackendRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "is required by the redis reset backend")
		}
	default:
		return invalid("reset.backend", "must be %q or %q, got %q", BackendPostgres, BackendRedis, c.Reset.Backend)
	}
	if c.Reset.MaxAge < 0 {
		return invalid("reset.max_age", "must not be negative")
	}
	if c.Reset.MaxAge > 0 {
		if _, err := cron.ParseStandard(c.Reset.PurgeSchedule); err != nil {
			return invalid("reset.purge_schedule", "%v", err)
		}
	}

	if c.Auth.UsernameMaxAttempts <= 0 {
		return invalid("auth.username_max_attempts", "must be positive")
	}
	if c.Auth.ClientLabel == "" {
		return invalid("auth.client_label", "is required")
	}
	return nil
}

// RequireDatabase reports a missing database URL.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "is required (set --database-url or DATABASE_URL)")
	}
	return nil
}

func validAddr(addr string) error {
	if addr == "" {
		return oops.Errorf("is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return oops.Wrapf(err, "must be host:port")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalid).
		With("key", key).
		Errorf(key+" "+format, args...)
}
