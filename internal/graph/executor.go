// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql"
	gql "github.com/graphql-go/graphql"
	gqlast "github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/oops"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/pkg/errutil"
)

var tracer = otel.Tracer("github.com/turnstile-gql/turnstile/internal/graph")

// DefaultQueryCacheSize is the number of parsed documents kept by default.
const DefaultQueryCacheSize = 256

// Executor runs GraphQL operations against a bound schema. Documents are
// validated with gqlparser and executed by the graphql-go runtime built from
// the same SDL. Root fields are served by registered handlers; fields of
// other object types are read from the Object their parent resolved to.
// Every field carrying @canAccess runs behind a RequireRole interceptor.
type Executor struct {
	schema    *ast.Schema
	runtime   gql.Schema
	fields    map[string]access.Handler
	guards    map[string]access.Chain
	bindings  []Binding
	cache     *lru.Cache[string, *document]
	cacheSize int
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger for internal errors and access denials.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithQueryCacheSize sets how many parsed query documents are cached.
func WithQueryCacheSize(size int) ExecutorOption {
	return func(e *Executor) {
		e.cacheSize = size
	}
}

// NewExecutor binds handlers to the schema's root fields. Every root field
// needs a handler and every handler needs a root field. A @canAccess
// directive that cannot be bound fails construction with a configuration
// error.
func NewExecutor(schema *ast.Schema, handlers map[string]access.Handler, opts ...ExecutorOption) (*Executor, error) {
	if schema == nil {
		return nil, oops.Code(access.CodeConfiguration).Errorf("schema is required")
	}
	e := &Executor{
		schema:    schema,
		fields:    make(map[string]access.Handler),
		guards:    make(map[string]access.Chain),
		cacheSize: DefaultQueryCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	cache, err := lru.New[string, *document](e.cacheSize)
	if err != nil {
		return nil, oops.Code(access.CodeConfiguration).
			With("size", e.cacheSize).
			Wrapf(err, "create query cache")
	}
	e.cache = cache

	for _, root := range []*ast.Definition{schema.Query, schema.Mutation} {
		if root == nil {
			continue
		}
		for _, field := range root.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			key := fieldKey(root.Name, field.Name)
			h, ok := handlers[key]
			if !ok || h == nil {
				return nil, access.ErrConfiguration(key, "no resolver is registered")
			}
			e.fields[key] = h
		}
	}
	for key := range handlers {
		if _, ok := e.fields[key]; !ok {
			return nil, access.ErrConfiguration(key, "resolver has no root field in the schema")
		}
	}

	e.bindings, err = Bind(schema)
	if err != nil {
		return nil, err
	}
	for _, b := range e.bindings {
		guard, err := access.NewRequireRole(b.Role, access.WithLogger(e.logger))
		if err != nil {
			return nil, access.ErrConfiguration(b.Key(), err.Error())
		}
		chain := access.Chain{guard}
		if h, ok := e.fields[b.Key()]; ok {
			e.fields[b.Key()] = chain.Then(h)
			continue
		}
		e.guards[b.Key()] = chain
	}

	e.runtime, err = buildRuntime(schema, e.resolver)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Bindings returns the @canAccess bindings the executor enforces.
func (e *Executor) Bindings() []Binding {
	return append([]Binding(nil), e.bindings...)
}

// Execute runs one operation. readOnly rejects anything but queries. Errors
// never escape as Go errors; they are reported in the response.
func (e *Executor) Execute(ctx context.Context, params *graphql.RawParams, readOnly bool) *graphql.Response {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "graph.execute",
		trace.WithAttributes(attribute.String("graphql.operation.name", params.OperationName)))
	defer span.End()

	kind := "invalid"
	resp := e.execute(ctx, params, readOnly, &kind)
	span.SetAttributes(attribute.String("graphql.operation.type", kind))
	if len(resp.Errors) > 0 {
		span.SetStatus(codes.Error, resp.Errors[0].Message)
	}
	recordRequest(kind, len(resp.Errors) == 0, time.Since(start))
	return resp
}

func (e *Executor) execute(ctx context.Context, params *graphql.RawParams, readOnly bool, kind *string) *graphql.Response {
	if strings.TrimSpace(params.Query) == "" {
		return errorResponse(requestError("query is required"))
	}
	doc, errs := e.parse(params.Query)
	if len(errs) > 0 {
		return &graphql.Response{Errors: errs}
	}

	op := doc.query.Operations.ForName(params.OperationName)
	if op == nil {
		if params.OperationName == "" {
			return errorResponse(requestError("operation name is required when the document has several operations"))
		}
		return errorResponse(requestError("operation %q not found", params.OperationName))
	}
	*kind = string(op.Operation)

	switch op.Operation {
	case ast.Query:
	case ast.Mutation:
		if readOnly {
			return errorResponse(requestError("mutations are not allowed over GET"))
		}
		if e.schema.Mutation == nil {
			return errorResponse(requestError("schema has no mutation type"))
		}
	default:
		return errorResponse(requestError("%s operations are not supported", op.Operation))
	}

	if _, err := validator.VariableValues(e.schema, op, params.Variables); err != nil {
		var gqlErr *gqlerror.Error
		if !errors.As(err, &gqlErr) {
			gqlErr = gqlerror.WrapPath(nil, err)
		}
		setCode(gqlErr, CodeRequestInvalid)
		return errorResponse(gqlErr)
	}

	result := gql.Execute(gql.ExecuteParams{
		Schema:        e.runtime,
		AST:           doc.exec,
		OperationName: op.Name,
		Args:          params.Variables,
		Context:       ctx,
	})

	resp := &graphql.Response{}
	for _, fe := range result.Errors {
		resp.Errors = append(resp.Errors, e.presentResult(ctx, fe))
	}
	if result.Data == nil {
		resp.Data = json.RawMessage("null")
		return resp
	}
	raw, err := json.Marshal(result.Data)
	if err != nil {
		errutil.LogError(ctx, e.logger, "encode graphql response", err)
		return errorResponse(requestError("failed to encode response"))
	}
	resp.Data = raw
	return resp
}

// document is a query validated against the SDL schema and parsed for the
// runtime.
type document struct {
	query *ast.QueryDocument
	exec  *gqlast.Document
}

func (e *Executor) parse(query string) (*document, gqlerror.List) {
	if doc, ok := e.cache.Get(query); ok {
		return doc, nil
	}
	q, errs := gqlparser.LoadQuery(e.schema, query)
	if len(errs) > 0 {
		for _, err := range errs {
			setCode(err, CodeRequestInvalid)
		}
		return nil, errs
	}
	parsed, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return nil, gqlerror.List{requestError("%s", err.Error())}
	}
	doc := &document{query: q, exec: parsed}
	e.cache.Add(query, doc)
	return doc, nil
}

// resolver serves one schema field. Root fields run their registered
// handler; other fields read the parent Object. Guards wrap both.
func (e *Executor) resolver(object, field string) gql.FieldResolveFn {
	key := fieldKey(object, field)
	return func(p gql.ResolveParams) (any, error) {
		ctx, span := tracer.Start(p.Context, "graph.field", trace.WithAttributes(attribute.String("graphql.field", key)))
		defer span.End()

		value, err := e.handlerFor(key, p.Source)(ctx, &access.Request{Object: object, Field: field, Args: p.Args})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errutil.Code(err))
			return nil, err
		}
		return value, nil
	}
}

func (e *Executor) handlerFor(key string, source any) access.Handler {
	if h, ok := e.fields[key]; ok {
		return h
	}
	h := func(_ context.Context, req *access.Request) (any, error) {
		obj, ok := source.(Object)
		if !ok {
			return nil, oops.Code(CodeInternal).
				With("field", key).
				Errorf("%s resolved to %T, not an object", req.Object, source)
		}
		return obj.FieldValue(req.Field)
	}
	if chain, ok := e.guards[key]; ok {
		return chain.Then(h)
	}
	return h
}

func errorResponse(err *gqlerror.Error) *graphql.Response {
	return &graphql.Response{Errors: gqlerror.List{err}}
}
