// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package access

import (
	"context"
	"log/slog"
	"strings"

	"github.com/turnstile-gql/turnstile/internal/auth"
)

// Request is a single field invocation.
type Request struct {
	// Object is the parent type name, e.g. "Query" or "Mutation".
	Object string
	Field  string
	Args   map[string]any
}

// Path returns "Object.Field".
func (r *Request) Path() string {
	return r.Object + "." + r.Field
}

// Handler resolves a field.
type Handler func(ctx context.Context, req *Request) (any, error)

// Interceptor wraps a Handler. Implementations either return without calling
// next or call it exactly once with the same ctx and req.
type Interceptor interface {
	Intercept(ctx context.Context, req *Request, next Handler) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, req *Request, next Handler) (any, error)

// Intercept calls f.
func (f InterceptorFunc) Intercept(ctx context.Context, req *Request, next Handler) (any, error) {
	return f(ctx, req, next)
}

// Chain composes interceptors. Chain[0] is the outermost.
type Chain []Interceptor

// Then returns a Handler that runs the chain around h.
func (c Chain) Then(h Handler) Handler {
	for i := len(c) - 1; i >= 0; i-- {
		ic := c[i]
		next := h
		h = func(ctx context.Context, req *Request) (any, error) {
			return ic.Intercept(ctx, req, next)
		}
	}
	return h
}

// RequireRole admits only authenticated callers whose role equals Role.
type RequireRole struct {
	role   string
	logger *slog.Logger
}

// RoleOption configures RequireRole.
type RoleOption func(*RequireRole)

// WithLogger sets the logger used for denial records.
func WithLogger(logger *slog.Logger) RoleOption {
	return func(r *RequireRole) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRequireRole creates the interceptor for a required role. An empty or
// blank role is a configuration error.
func NewRequireRole(role string, opts ...RoleOption) (*RequireRole, error) {
	if strings.TrimSpace(role) == "" {
		return nil, ErrConfiguration("", "requiredRole must be a non-empty string")
	}
	r := &RequireRole{role: role, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Role returns the required role.
func (r *RequireRole) Role() string {
	return r.role
}

// Intercept denies anonymous callers and callers with any other role using
// the same error, then delegates to next unchanged.
func (r *RequireRole) Intercept(ctx context.Context, req *Request, next Handler) (any, error) {
	caller := auth.CallerFromContext(ctx)
	if !caller.Authenticated() || caller.User.Role != r.role {
		RecordDecision(req.Object, DecisionDenied)
		r.logger.DebugContext(ctx, "field access denied",
			"field", req.Path(),
			"required_role", r.role,
			"authenticated", caller.Authenticated())
		return nil, ErrUnauthorized(req.Object)
	}
	RecordDecision(req.Object, DecisionGranted)
	return next(ctx, req)
}
