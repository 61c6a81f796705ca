// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package access enforces role requirements on field resolution.
//
// A schema field annotated with @canAccess(requiredRole: "r") is bound at
// startup to a RequireRole interceptor. The interceptor runs before the
// field's resolver and fails with ErrUnauthorized unless the caller in the
// request context is authenticated and holds role r. Roles compare by exact
// string equality; there is no hierarchy.
package access
