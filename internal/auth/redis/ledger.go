// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package redis provides a Redis-backed auth.ResetLedger.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/oops"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

const (
	keyPrefix = "turnstile:reset:"
	scanBatch = 100
)

var errMismatch = errors.New("reset token mismatch")

// entry is the stored JSON value for one email.
type entry struct {
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// ResetLedger stores one reset entry per email under keyPrefix+email.
// Keys carry a TTL of maxAge so Redis expires them on its own.
type ResetLedger struct {
	client *redis.Client
	maxAge time.Duration
	clock  func() time.Time
}

// Option configures a ResetLedger.
type Option func(*ResetLedger)

// WithClock overrides the time source used for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(l *ResetLedger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewResetLedger wraps an existing client.
func NewResetLedger(client *redis.Client, maxAge time.Duration, opts ...Option) *ResetLedger {
	l := &ResetLedger{client: client, maxAge: maxAge, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
	}
	return client, nil
}

func key(email string) string {
	return keyPrefix + email
}

// Upsert overwrites the entry for email. SET replaces atomically.
func (l *ResetLedger) Upsert(ctx context.Context, email, tokenHash string, createdAt time.Time) error {
	data, err := json.Marshal(entry{TokenHash: tokenHash, CreatedAt: createdAt.UTC()})
	if err != nil {
		return auth.StorageError("marshal password reset", err)
	}

	ttl := time.Duration(0)
	if l.maxAge > 0 {
		ttl = l.maxAge - l.clock().Sub(createdAt)
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	if err := l.client.Set(ctx, key(email), data, ttl).Err(); err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "set password reset").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// Find returns the entry for email when token matches and has not expired.
func (l *ResetLedger) Find(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	e, err := l.load(ctx, key(email))
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("RESET_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodeStorage).
			With("operation", "get password reset").
			With("email", email).
			Wrap(err)
	}

	rt := &auth.ResetToken{Email: email, TokenHash: e.TokenHash, CreatedAt: e.CreatedAt}
	if !rt.Matches(token) {
		return nil, oops.Code("RESET_TOKEN_MISMATCH").With("email", email).Wrap(auth.ErrNotFound)
	}
	if rt.ExpiredAt(l.clock(), l.maxAge) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").With("email", email).Wrap(auth.ErrNotFound)
	}
	return rt, nil
}

// Consume deletes the entry for email when token matches it. The key is
// WATCHed between the read and the delete, so a concurrent Consume or
// Upsert aborts this one and the token is reported as not found.
func (l *ResetLedger) Consume(ctx context.Context, email, token string) (*auth.ResetToken, error) {
	k := key(email)
	var rt *auth.ResetToken
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		e, err := l.loadWith(ctx, tx, k)
		if err != nil {
			return err
		}
		candidate := &auth.ResetToken{Email: email, TokenHash: e.TokenHash, CreatedAt: e.CreatedAt}
		if !candidate.Matches(token) {
			return errMismatch
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		}); err != nil {
			return err //nolint:wrapcheck // classified below
		}
		rt = candidate
		return nil
	}, k)

	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, oops.Code("RESET_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	case errors.Is(err, errMismatch):
		return nil, oops.Code("RESET_TOKEN_MISMATCH").With("email", email).Wrap(auth.ErrNotFound)
	case errors.Is(err, redis.TxFailedErr):
		return nil, oops.Code("RESET_TOKEN_CHANGED").With("email", email).Wrap(auth.ErrNotFound)
	default:
		return nil, oops.Code(auth.CodeStorage).
			With("operation", "consume password reset").
			With("email", email).
			Wrap(err)
	}

	if rt.ExpiredAt(l.clock(), l.maxAge) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").With("email", email).Wrap(auth.ErrNotFound)
	}
	return rt, nil
}

// DeleteByEmail removes the entry for email, if any.
func (l *ResetLedger) DeleteByEmail(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, key(email)).Err(); err != nil {
		return oops.Code(auth.CodeStorage).
			With("operation", "delete password reset").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// DeleteExpired scans reset keys and removes entries created before olderThan.
// Redis TTLs normally get there first; this catches keys written without one.
func (l *ResetLedger) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	var deleted int64
	iter := l.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		e, err := l.load(ctx, k)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, oops.Code(auth.CodeStorage).
				With("operation", "load password reset").
				With("key", k).
				Wrap(err)
		}
		if !e.CreatedAt.Before(olderThan) {
			continue
		}
		n, err := l.client.Del(ctx, k).Result()
		if err != nil {
			return deleted, oops.Code(auth.CodeStorage).
				With("operation", "delete expired password reset").
				With("key", k).
				Wrap(err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, oops.Code(auth.CodeStorage).
			With("operation", "scan password resets").
			Wrap(err)
	}
	return deleted, nil
}

func (l *ResetLedger) load(ctx context.Context, k string) (*entry, error) {
	return l.loadWith(ctx, l.client, k)
}

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (l *ResetLedger) loadWith(ctx context.Context, g getter, k string) (*entry, error) {
	data, err := g.Get(ctx, k).Bytes()
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify redis.Nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, oops.With("operation", "unmarshal password reset").With("key", k).Wrap(err)
	}
	return &e, nil
}
