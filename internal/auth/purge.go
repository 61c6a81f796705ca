// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// DefaultPurgeSchedule runs the reset ledger purge every fifteen minutes.
const DefaultPurgeSchedule = "@every 15m"

// PurgeWorker periodically removes expired reset tokens from a ResetLedger.
type PurgeWorker struct {
	ledger   ResetLedger
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	clock    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// PurgeOption configures a PurgeWorker.
type PurgeOption func(*PurgeWorker)

// WithPurgeLogger sets the worker's logger.
func WithPurgeLogger(logger *slog.Logger) PurgeOption {
	return func(w *PurgeWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithPurgeClock overrides the time source for the expiry cutoff.
func WithPurgeClock(clock func() time.Time) PurgeOption {
	return func(w *PurgeWorker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// NewPurgeWorker validates the cron schedule and returns an unstarted worker.
func NewPurgeWorker(ledger ResetLedger, maxAge time.Duration, schedule string, opts ...PurgeOption) (*PurgeWorker, error) {
	if ledger == nil {
		return nil, oops.Errorf("reset ledger is required")
	}
	if maxAge <= 0 {
		return nil, oops.Code("PURGE_INVALID_MAX_AGE").With("max_age", maxAge.String()).Errorf("max age must be positive")
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, oops.Code("PURGE_INVALID_SCHEDULE").With("schedule", schedule).Wrap(err)
	}

	w := &PurgeWorker{
		ledger:   ledger,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RunOnce deletes every entry older than the max age.
func (w *PurgeWorker) RunOnce(ctx context.Context) (int64, error) {
	cutoff := w.clock().Add(-w.maxAge)
	n, err := w.ledger.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, StorageError("purge expired reset tokens", err)
	}
	ResetTokensPurged.Add(float64(n))
	if n > 0 {
		w.logger.InfoContext(ctx, "purged expired reset tokens", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start schedules RunOnce. Jobs run with ctx until Stop is called.
func (w *PurgeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return oops.Code("PURGE_ALREADY_STARTED").Errorf("purge worker already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "reset token purge failed", "error", err)
		}
	}); err != nil {
		return oops.Code("PURGE_INVALID_SCHEDULE").With("schedule", w.schedule).Wrap(err)
	}
	c.Start()
	w.cron = c
	return nil
}

// Stop halts scheduling and waits for a running purge to finish.
func (w *PurgeWorker) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
