// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/internal/auth"
)

// Flows is the credential lifecycle the mutations delegate to.
// *auth.Controller implements it.
type Flows interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, caller *auth.Caller, in auth.RegisterInput) (bool, error)
	Logout(ctx context.Context, caller *auth.Caller) (bool, error)
	ForgotPassword(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, email, token, newPassword string) (bool, error)
}

// UserFinder resolves users for the read-only queries.
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*auth.User, error)
}

// Object is a resolved value of an object type. The executor asks it for
// each selected field.
type Object interface {
	FieldValue(name string) (any, error)
}

// Resolver holds the terminal field handlers.
type Resolver struct {
	flows Flows
	users UserFinder
}

// NewResolver creates a Resolver.
func NewResolver(flows Flows, users UserFinder) (*Resolver, error) {
	if flows == nil {
		return nil, oops.Errorf("flows are required")
	}
	if users == nil {
		return nil, oops.Errorf("user finder is required")
	}
	return &Resolver{flows: flows, users: users}, nil
}

// Handlers returns the root field handlers keyed by "Type.field".
func (r *Resolver) Handlers() map[string]access.Handler {
	return map[string]access.Handler{
		"Query.me":                r.me,
		"Query.lookupUser":        r.lookupUser,
		"Mutation.login":          r.login,
		"Mutation.register":       r.register,
		"Mutation.logout":         r.logout,
		"Mutation.forgotPassword": r.forgotPassword,
		"Mutation.resetPassword":  r.resetPassword,
	}
}

func (r *Resolver) me(ctx context.Context, _ *access.Request) (any, error) {
	caller := auth.CallerFromContext(ctx)
	if !caller.Authenticated() {
		return nil, auth.ErrNotAuthenticated()
	}
	return userObject{caller.User}, nil
}

func (r *Resolver) lookupUser(ctx context.Context, req *access.Request) (any, error) {
	user, err := r.users.GetByUsername(ctx, stringArg(req.Args, "username"))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, auth.StorageError("get user by username", err)
	}
	return userObject{user}, nil
}

func (r *Resolver) login(ctx context.Context, req *access.Request) (any, error) {
	in := inputArg(req.Args)
	return r.flows.Login(ctx, stringArg(in, "email"), stringArg(in, "password"))
}

func (r *Resolver) register(ctx context.Context, req *access.Request) (any, error) {
	in := inputArg(req.Args)
	return r.flows.Register(ctx, auth.CallerFromContext(ctx), auth.RegisterInput{
		Email:    stringArg(in, "email"),
		Password: stringArg(in, "password"),
		Country:  stringArg(in, "country"),
		Currency: stringArg(in, "currency"),
	})
}

func (r *Resolver) logout(ctx context.Context, _ *access.Request) (any, error) {
	return r.flows.Logout(ctx, auth.CallerFromContext(ctx))
}

func (r *Resolver) forgotPassword(ctx context.Context, req *access.Request) (any, error) {
	return r.flows.ForgotPassword(ctx, stringArg(inputArg(req.Args), "email"))
}

func (r *Resolver) resetPassword(ctx context.Context, req *access.Request) (any, error) {
	in := inputArg(req.Args)
	return r.flows.ResetPassword(ctx, stringArg(in, "email"), stringArg(in, "token"), stringArg(in, "password"))
}

func inputArg(args map[string]any) map[string]any {
	in, _ := args["input"].(map[string]any)
	return in
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// userObject exposes a user without its password hash.
type userObject struct {
	user *auth.User
}

func (u userObject) FieldValue(name string) (any, error) {
	switch name {
	case "id":
		return u.user.ID.String(), nil
	case "email":
		return u.user.Email, nil
	case "username":
		return u.user.Username, nil
	case "role":
		return u.user.Role, nil
	case "status":
		return string(u.user.Status), nil
	case "country":
		return u.user.Country, nil
	case "currency":
		return u.user.Currency, nil
	case "createdAt":
		return u.user.CreatedAt.UTC().Format(time.RFC3339), nil
	default:
		return nil, oops.Code(access.CodeConfiguration).
			With("field", fieldKey("User", name)).
			Errorf("no resolver for User.%s", name)
	}
}
