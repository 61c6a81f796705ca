// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/graph"
	"github.com/turnstile-gql/turnstile/internal/observability"
	"github.com/turnstile-gql/turnstile/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the Postgres pool.
	// Default: store.OpenPool
	PoolFactory func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error)

	// RedisFactory connects the redis reset backend.
	// Default: authredis.Connect
	RedisFactory func(ctx context.Context, url string) (*redis.Client, error)

	// SchemaLoader loads the GraphQL schema.
	// Default: graph.LoadSchema with the embedded SDL
	SchemaLoader func() (*ast.Schema, error)

	// GraphServerFactory creates the GraphQL HTTP server.
	// Default: graph.NewServer
	GraphServerFactory func(addr string, handler http.Handler, logger *slog.Logger) Server

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, opts ...observability.Option) Server
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for the database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

// Pool is the subset of *pgxpool.Pool serve uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Server is implemented by graph.Server and observability.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error) {
			pool, err := store.OpenPool(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = connectRedis
	}
	if out.SchemaLoader == nil {
		out.SchemaLoader = func() (*ast.Schema, error) { return graph.LoadSchema() }
	}
	if out.GraphServerFactory == nil {
		out.GraphServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return graph.NewServer(addr, handler, logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, opts ...observability.Option) Server {
			return observability.NewServer(addr, opts...)
		}
	}
	return &out
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}
