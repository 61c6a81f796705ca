// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError records err at error level through logger.ErrorContext, so
// handlers that read ctx (trace correlation) see the request. A coded
// error adds "code" and its oops context under a "context" group. A nil
// logger falls back to slog.Default.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.String("error", errorString(err))}
	if code := Code(err); code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if fields := oopsErr.Context(); len(fields) > 0 {
			group := make([]any, 0, len(fields))
			for k, v := range fields {
				group = append(group, slog.Any(k, v))
			}
			attrs = append(attrs, slog.Group("context", group...))
		}
	}
	logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func errorString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
