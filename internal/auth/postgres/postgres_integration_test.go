// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/auth/postgres"
	"github.com/turnstile-gql/turnstile/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("turnstile_test"),
		tcpostgres.WithUsername("turnstile"),
		tcpostgres.WithPassword("turnstile"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err == nil {
		err = migrator.Up()
		_ = migrator.Close()
	}
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}

	testPool, err = store.OpenPool(ctx, connStr, store.PoolOptions{})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newUser(t *testing.T, email, username string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, username, "hash", "DE", "EUR", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	user := newUser(t, "int@x.com", "intuser01")
	require.NoError(t, repo.Create(ctx, user))

	stored, err := repo.GetByEmail(ctx, "int@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.Equal(t, auth.StatusActive, stored.Status)

	dupEmail := newUser(t, "int@x.com", "intuser02")
	assert.ErrorIs(t, repo.Create(ctx, dupEmail), auth.ErrDuplicateEmail)

	dupName := newUser(t, "other@x.com", "intuser01")
	assert.ErrorIs(t, repo.Create(ctx, dupName), auth.ErrDuplicateUsername)

	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "newhash"))
	stored, err = repo.GetByUsername(ctx, "intuser01")
	require.NoError(t, err)
	assert.Equal(t, "newhash", stored.PasswordHash)

	_, err = repo.GetByID(ctx, ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_Integration_UnknownStatus(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	user := newUser(t, "banned@x.com", "banned01")
	user.Status = auth.Status("banned")
	require.NoError(t, repo.Create(ctx, user), "any status value is storable")

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.Status("banned"), stored.Status)
	assert.False(t, stored.IsActive())
}

func TestTokenRepository_Integration(t *testing.T) {
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)
	tokens := postgres.NewTokenRepository(testPool)

	user := newUser(t, "tok@x.com", "tokuser01")
	require.NoError(t, users.Create(ctx, user))

	issuer, err := auth.NewTokenIssuer(tokens, users)
	require.NoError(t, err)

	first, err := issuer.Mint(ctx, user.ID, "web")
	require.NoError(t, err)
	_, err = issuer.Mint(ctx, user.ID, "cli")
	require.NoError(t, err)

	owner, token, err := issuer.Authenticate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	require.NoError(t, issuer.Revoke(ctx, token.ID))
	assert.ErrorIs(t, issuer.Revoke(ctx, token.ID), auth.ErrNotFound)

	n, err := issuer.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestResetLedger_Integration(t *testing.T) {
	ctx := context.Background()
	ledger := postgres.NewResetLedger(testPool, time.Hour)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, "reset@x.com")
	})

	oldToken, oldHash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	newToken, newHash, err := auth.GenerateResetToken()
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, ledger.Upsert(ctx, "reset@x.com", oldHash, now))
	require.NoError(t, ledger.Upsert(ctx, "reset@x.com", newHash, now))

	_, err = ledger.Find(ctx, "reset@x.com", oldToken)
	assert.ErrorIs(t, err, auth.ErrNotFound, "upsert replaces the previous token")

	entry, err := ledger.Find(ctx, "reset@x.com", newToken)
	require.NoError(t, err)
	assert.Equal(t, "reset@x.com", entry.Email)

	n, err := ledger.DeleteExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = ledger.Find(ctx, "reset@x.com", newToken)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestResetLedger_Integration_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	ledger := postgres.NewResetLedger(testPool, time.Hour)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, "race@x.com")
	})

	token, hash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	require.NoError(t, ledger.Upsert(ctx, "race@x.com", hash, time.Now().UTC()))

	const callers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := ledger.Consume(ctx, "race@x.com", token); err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, auth.ErrNotFound)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestResetLedger_Integration_ConsumeKeepsReplacedToken(t *testing.T) {
	ctx := context.Background()
	ledger := postgres.NewResetLedger(testPool, time.Hour)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, "replaced@x.com")
	})

	stale, staleHash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	fresh, freshHash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, ledger.Upsert(ctx, "replaced@x.com", staleHash, now))
	require.NoError(t, ledger.Upsert(ctx, "replaced@x.com", freshHash, now))

	_, err = ledger.Consume(ctx, "replaced@x.com", stale)
	require.ErrorIs(t, err, auth.ErrNotFound)

	entry, err := ledger.Find(ctx, "replaced@x.com", fresh)
	require.NoError(t, err)
	assert.Equal(t, freshHash, entry.TokenHash)
}
