// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"log/slog"
)

// Notifier delivers account notifications. Delivery is fire-and-forget:
// errors are logged by the caller and never fail a flow.
type Notifier interface {
	// SendVerification asks a newly registered user to verify their email.
	// domain is the brand derived from the host the user registered on.
	SendVerification(ctx context.Context, user *User, domain string) error

	// SendPasswordReset delivers a plaintext reset token.
	SendPasswordReset(ctx context.Context, token string, user *User) error
}

// LogNotifier writes notifications to a logger instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendVerification logs the verification request.
func (n *LogNotifier) SendVerification(ctx context.Context, user *User, domain string) error {
	n.logger.InfoContext(ctx, "verification notification",
		"user_id", user.ID.String(),
		"email", user.Email,
		"domain", domain)
	return nil
}

// SendPasswordReset logs that a reset was issued. The token itself is not logged.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, _ string, user *User) error {
	n.logger.InfoContext(ctx, "password reset notification",
		"user_id", user.ID.String(),
		"email", user.Email)
	return nil
}
