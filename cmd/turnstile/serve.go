// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/auth/postgres"
	authredis "github.com/turnstile-gql/turnstile/internal/auth/redis"
	"github.com/turnstile-gql/turnstile/internal/config"
	"github.com/turnstile-gql/turnstile/internal/graph"
	"github.com/turnstile-gql/turnstile/internal/observability"
	"github.com/turnstile-gql/turnstile/internal/store"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// CodeServerFailed is returned by serve when a running server fails.
const CodeServerFailed = "SERVER_FAILED"

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL endpoint",
		Long: `Serve the GraphQL endpoint with the auth mutations, the metrics and
health endpoints, and the expired reset token purge job.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, deps)
		},
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	return authredis.Connect(ctx, url)
}

// runServe wires the stores, flows and servers, then blocks until a signal,
// a server failure, or ctx cancellation.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// Bind before touching any store so a bad directive aborts startup early.
	schema, err := deps.SchemaLoader()
	if err != nil {
		return err
	}
	bindings, err := graph.Bind(schema)
	if err != nil {
		return err
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	users := postgres.NewUserRepository(pool)
	tokens := postgres.NewTokenRepository(pool)

	readiness := []observability.Option{
		observability.WithReadinessCheck("database", pool.Ping),
	}

	var ledger auth.ResetLedger
	switch cfg.Reset.Backend {
	case config.BackendRedis:
		client, err := deps.RedisFactory(ctx, cfg.Redis.URL)
		if err != nil {
			return oops.With("operation", "connect to redis").Wrap(err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
		ledger = authredis.NewResetLedger(client, cfg.Reset.MaxAge)
		readiness = append(readiness, observability.WithReadinessCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	default:
		ledger = postgres.NewResetLedger(pool, cfg.Reset.MaxAge)
	}

	exec, issuer, err := buildExecutor(cfg, logger, schema, users, tokens, ledger)
	if err != nil {
		return err
	}
	logger.Info("schema bound", "directives", len(bindings), "reset_backend", cfg.Reset.Backend)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), shutdownTimeout)
	}

	if cfg.Reset.MaxAge > 0 {
		worker, err := auth.NewPurgeWorker(ledger, cfg.Reset.MaxAge, cfg.Reset.PurgeSchedule,
			auth.WithPurgeLogger(logger))
		if err != nil {
			return err
		}
		if err := worker.Start(ctx); err != nil {
			return err
		}
		defer worker.Stop()
	}

	if cfg.Metrics.Addr != "" {
		opts := append([]observability.Option{
			observability.WithLogger(logger),
			observability.WithMetrics(auth.RegisterMetrics, access.RegisterMetrics, graph.RegisterMetrics),
		}, readiness...)
		obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, opts...)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			stopCtx, stopCancel := shutdownCtx()
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	handler := graph.NewHandler(exec, issuer,
		graph.WithHandlerLogger(logger),
		graph.WithPlayground(cfg.Server.Playground))
	graphServer := deps.GraphServerFactory(cfg.Server.Addr, handler, logger)
	graphErrCh, err := graphServer.Start()
	if err != nil {
		return oops.With("operation", "start graphql server").Wrap(err)
	}
	defer func() {
		stopCtx, stopCancel := shutdownCtx()
		defer stopCancel()
		if err := graphServer.Stop(stopCtx); err != nil {
			logger.Warn("error stopping graphql server", "error", err)
		}
	}()
	go monitorServerErrors(ctx, cancel, graphErrCh, "graphql", logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Turnstile started")
	logger.Info("turnstile ready", "addr", graphServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) &&
			!errors.Is(cause, context.DeadlineExceeded) {
			logger.Info("server failed, shutting down")
			return cause
		}
		logger.Info("context cancelled, shutting down")
	}
	return nil
}

// buildExecutor assembles the auth flows over the stores and binds them to
// the schema.
func buildExecutor(
	cfg *config.Config,
	logger *slog.Logger,
	schema *ast.Schema,
	users auth.UserRepository,
	tokens auth.TokenRepository,
	ledger auth.ResetLedger,
) (*graph.Executor, *auth.TokenIssuer, error) {
	issuer, err := auth.NewTokenIssuer(tokens, users, auth.WithIssuerLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	usernames, err := auth.NewUsernameGenerator(users, auth.WithMaxAttempts(cfg.Auth.UsernameMaxAttempts))
	if err != nil {
		return nil, nil, err
	}

	normalizer := auth.CaseSensitiveEmails
	if cfg.Auth.EmailCaseInsensitive {
		normalizer = auth.CaseInsensitiveEmails
	}
	controller, err := auth.NewController(auth.ControllerConfig{
		Users:     users,
		Tokens:    issuer,
		Ledger:    ledger,
		Usernames: usernames,
		Hasher:    auth.NewArgon2idHasher(),
		Notifier:  auth.NewLogNotifier(logger),
	},
		auth.WithLogger(logger),
		auth.WithClientLabel(cfg.Auth.ClientLabel),
		auth.WithEmailNormalizer(normalizer),
	)
	if err != nil {
		return nil, nil, err
	}

	resolver, err := graph.NewResolver(controller, users)
	if err != nil {
		return nil, nil, err
	}
	exec, err := graph.NewExecutor(schema, resolver.Handlers(), graph.WithExecutorLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return exec, issuer, nil
}

// monitorServerErrors cancels ctx with a SERVER_FAILED cause when a server
// reports a serve failure. It returns when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(ctx, logger.With("server", serverName), "server error, triggering shutdown", err)
			cancel(oops.Code(CodeServerFailed).With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}
