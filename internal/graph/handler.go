// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gorilla/mux"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/turnstile-gql/turnstile/internal/auth"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

// Endpoint is the path GraphQL operations are served on.
const Endpoint = "/graphql"

// maxBodyBytes caps the size of a POSTed operation.
const maxBodyBytes = 1 << 20

// Authenticator resolves a bearer token to its user and token.
// *auth.TokenIssuer implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*auth.User, *auth.AccessToken, error)
}

// BearerMiddleware stores an auth.Caller on every request context. A missing
// or rejected token leaves the caller anonymous so public fields still
// resolve; the request is never failed here.
func BearerMiddleware(issuer Authenticator, logger *slog.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := &auth.Caller{Host: r.Host}
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
				user, tok, err := issuer.Authenticate(ctx, token)
				switch {
				case err == nil:
					caller.User, caller.Token = user, tok
				case errutil.Code(err) == auth.CodeNotAuthenticated:
					logger.DebugContext(ctx, "bearer token rejected", "remote_addr", r.RemoteAddr)
				default:
					errutil.LogError(ctx, logger, "authenticate bearer token", err)
				}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(ctx, caller)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	logger     *slog.Logger
	playground bool
}

// WithHandlerLogger sets the logger for transport failures.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPlayground toggles the GraphQL playground served at "/".
func WithPlayground(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.playground = enabled
	}
}

// NewHandler routes POST and GET operations on Endpoint through the bearer
// middleware to the executor. GET only runs queries.
func NewHandler(exec *Executor, issuer Authenticator, opts ...HandlerOption) http.Handler {
	cfg := handlerConfig{logger: slog.Default(), playground: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &transport{exec: exec, logger: cfg.logger}

	r := mux.NewRouter()
	api := r.Path(Endpoint).Subrouter()
	api.Use(BearerMiddleware(issuer, cfg.logger))
	api.Methods(http.MethodPost).HandlerFunc(h.post)
	api.Methods(http.MethodGet).HandlerFunc(h.get)
	if cfg.playground {
		r.Path("/").Methods(http.MethodGet).Handler(playground.Handler("Turnstile", Endpoint))
	}
	return r
}

type transport struct {
	exec   *Executor
	logger *slog.Logger
}

func (t *transport) post(w http.ResponseWriter, r *http.Request) {
	var params graphql.RawParams
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&params); err != nil {
		t.write(r, w, http.StatusBadRequest, errorResponse(requestError("request body is not a GraphQL JSON payload")))
		return
	}
	t.write(r, w, http.StatusOK, t.exec.Execute(r.Context(), &params, false))
}

func (t *transport) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := graphql.RawParams{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}
	if raw := q.Get("variables"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		if err := dec.Decode(&params.Variables); err != nil {
			t.write(r, w, http.StatusBadRequest, errorResponse(requestError("variables must be a JSON object")))
			return
		}
	}
	t.write(r, w, http.StatusOK, t.exec.Execute(r.Context(), &params, true))
}

func (t *transport) write(r *http.Request, w http.ResponseWriter, status int, resp *graphql.Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		errutil.LogError(r.Context(), t.logger, "encode graphql response", err)
		body, _ = json.Marshal(&graphql.Response{ //nolint:errcheck // static payload
			Errors: gqlerror.List{gqlerror.Errorf("%s", internalMessage)},
		})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write(body)
}
