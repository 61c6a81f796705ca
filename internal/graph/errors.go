// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"context"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/samber/oops"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/trace"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

// Error codes reported in extensions.code besides the auth and access codes.
const (
	CodeInternal       = "INTERNAL_ERROR"
	CodeRequestInvalid = "GRAPHQL_VALIDATION_FAILED"
)

// internalMessage replaces the message of every error not meant for callers.
const internalMessage = "internal error"

func requestError(format string, args ...any) *gqlerror.Error {
	err := gqlerror.Errorf(format, args...)
	setCode(err, CodeRequestInvalid)
	return err
}

func setCode(err *gqlerror.Error, code string) {
	if err.Extensions == nil {
		err.Extensions = map[string]any{}
	}
	if _, ok := err.Extensions["code"]; !ok {
		err.Extensions["code"] = code
	}
}

// present converts a field error into its wire form. Domain errors keep
// their caller-facing message. Everything else is logged and reduced to a
// generic message, keeping its code.
func (e *Executor) present(ctx context.Context, path ast.Path, err error) *gqlerror.Error {
	code := errutil.Code(err)
	gqlErr := gqlerror.WrapPath(path, err)

	switch {
	case code == access.CodeUnauthorized:
		gqlErr.Message = err.Error()
	case auth.IsDomainError(err):
		gqlErr.Message = auth.UserMessage(err)
	default:
		errutil.LogError(ctx, e.logger.With("path", path.String()), "graphql field failed", err)
		trace.SpanFromContext(ctx).AddEvent("internal error")
		gqlErr.Message = internalMessage
		if code == "" {
			code = CodeInternal
		}
	}

	gqlErr.Extensions = map[string]any{"code": code}
	if fields := auth.ValidationFields(err); fields != nil {
		gqlErr.Extensions["validation"] = fields
	}
	return gqlErr
}

// presentResult converts a runtime error. Errors raised by a resolver are
// presented from their cause; errors without a path concern the request.
func (e *Executor) presentResult(ctx context.Context, fe gqlerrors.FormattedError) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if len(fe.Path) == 0 {
		gqlErr = requestError("%s", fe.Message)
	} else {
		gqlErr = e.present(ctx, responsePath(fe.Path), resolverCause(fe))
	}
	for _, loc := range fe.Locations {
		gqlErr.Locations = append(gqlErr.Locations, gqlerror.Location{Line: loc.Line, Column: loc.Column})
	}
	return gqlErr
}

// resolverCause unwraps the runtime's located errors down to the error a
// resolver returned. Errors the runtime raised itself, such as a null in a
// non-null field, have no coded cause and present as internal.
func resolverCause(fe gqlerrors.FormattedError) error {
	err := fe.OriginalError()
	for {
		located, ok := err.(*gqlerrors.Error)
		if !ok || located.OriginalError == nil || located.OriginalError == err {
			break
		}
		err = located.OriginalError
	}
	if err == nil {
		return oops.Code(CodeInternal).Errorf("%s", fe.Message)
	}
	return err
}

func responsePath(raw []any) ast.Path {
	path := make(ast.Path, 0, len(raw))
	for _, p := range raw {
		switch p := p.(type) {
		case string:
			path = append(path, ast.PathName(p))
		case int:
			path = append(path, ast.PathIndex(p))
		}
	}
	return path
}
