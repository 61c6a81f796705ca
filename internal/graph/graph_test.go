// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/internal/auth/authtest"
	"github.com/turnstile-gql/turnstile/internal/graph"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	env  *authtest.Env
	exec *graph.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := authtest.NewEnv()
	return &fixture{env: env, exec: newExecutor(t, env.Controller, env.Users)}
}

func newExecutor(t *testing.T, flows graph.Flows, users graph.UserFinder) *graph.Executor {
	t.Helper()
	schema, err := graph.LoadSchema()
	require.NoError(t, err)
	resolver, err := graph.NewResolver(flows, users)
	require.NoError(t, err)
	exec, err := graph.NewExecutor(schema, resolver.Handlers(), graph.WithExecutorLogger(discard))
	require.NoError(t, err)
	return exec
}

func (f *fixture) run(ctx context.Context, query string, vars map[string]any) *graphql.Response {
	return f.exec.Execute(ctx, &graphql.RawParams{Query: query, Variables: vars}, false)
}

// signIn mints a real token for user and returns a context carrying the
// authenticated caller.
func (f *fixture) signIn(t *testing.T, user auth.User) context.Context {
	t.Helper()
	ctx := context.Background()
	token, err := f.env.Issuer.Mint(ctx, user.ID, "web")
	require.NoError(t, err)
	u, tok, err := f.env.Issuer.Authenticate(ctx, token)
	require.NoError(t, err)
	return auth.WithCaller(ctx, &auth.Caller{User: u, Token: tok, Host: "www.brand.com"})
}

func anonymous() context.Context {
	return auth.WithCaller(context.Background(), &auth.Caller{Host: "www.brand.com"})
}

func decodeData(t *testing.T, resp *graphql.Response) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data
}

func errorCode(t *testing.T, resp *graphql.Response, i int) string {
	t.Helper()
	require.Greater(t, len(resp.Errors), i, "expected at least %d errors", i+1)
	code, _ := resp.Errors[i].Extensions["code"].(string)
	return code
}

func mustLoad(t *testing.T, sdl string) *ast.Schema {
	t.Helper()
	schema, err := graph.LoadSchema(&ast.Source{Name: "test.graphql", Input: sdl})
	require.NoError(t, err)
	return schema
}

// mapObject resolves fields from a map.
type mapObject map[string]any

func (m mapObject) FieldValue(name string) (any, error) {
	return m[name], nil
}
