// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"net"
	"strings"
)

// Caller is the identity of the request being served. A Caller with a nil
// User is anonymous.
type Caller struct {
	User  *User
	Token *AccessToken
	// Host is the request host, used to brand outgoing notifications.
	Host string
}

// Authenticated reports whether the caller presented a valid token.
func (c *Caller) Authenticated() bool {
	return c != nil && c.User != nil && c.Token != nil
}

type callerKey struct{}

// WithCaller returns a context carrying the caller.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by WithCaller, or nil.
func CallerFromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}

// MainDomainPart returns the registrable label of a host, e.g. "brand" for
// "www.brand.com:8443". Single-label hosts are returned unchanged.
func MainDomainPart(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return labels[len(labels)-2]
}
