// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package access

import (
	"github.com/samber/oops"
)

// Error codes.
const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
)

// ErrConfiguration reports a directive that cannot be bound. field is the
// "Type.field" path when known.
func ErrConfiguration(field, reason string) error {
	b := oops.Code(CodeConfiguration)
	if field != "" {
		b = b.With("field", field)
		return b.Errorf("invalid @canAccess on %s: %s", field, reason)
	}
	return b.Errorf("invalid @canAccess: %s", reason)
}

// ErrUnauthorized is returned for both anonymous and wrong-role callers.
func ErrUnauthorized(object string) error {
	return oops.Code(CodeUnauthorized).
		With("object", object).
		Errorf("You are not authorized to access %s", object)
}
