// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these with oops context.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when a create violates email uniqueness.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrDuplicateUsername is returned when a create violates username uniqueness.
	ErrDuplicateUsername = errors.New("username already exists")
)

// Error codes for authentication failures.
const (
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountNotActive   = "ACCOUNT_NOT_ACTIVE"
	CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeStorage            = "STORAGE_ERROR"
)

// ErrNotAuthenticated creates an error for a request without a valid caller token.
func ErrNotAuthenticated() error {
	return oops.Code(CodeNotAuthenticated).Errorf("not authenticated")
}

// ErrInvalidCredentials creates an error for an unknown email or wrong password.
// Both cases share one message so callers cannot enumerate accounts.
func ErrInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("credentials are incorrect")
}

// ErrAccountNotActive creates an error carrying the account's actual status.
func ErrAccountNotActive(status Status) error {
	return oops.Code(CodeAccountNotActive).
		With("status", string(status)).
		Errorf("user is not active, status is %s", status)
}

// ErrAccountDeactivated creates an error for a self-excluded account.
func ErrAccountDeactivated() error {
	return oops.Code(CodeAccountDeactivated).Errorf("user is deactivated by self exclusion")
}

// StorageError wraps a non-domain failure from a store.
func StorageError(operation string, cause error) error {
	return oops.Code(CodeStorage).
		With("operation", operation).
		Wrap(cause)
}

// FieldErrors collects validation failures keyed by input field.
type FieldErrors map[string][]string

// Add records a failure message for field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Err returns a ValidationError enumerating every failing field, or nil.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	fields := make([]string, 0, len(f))
	for name := range f {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return oops.Code(CodeValidationFailed).
		With("fields", map[string][]string(f)).
		Errorf("validation failed: %s", strings.Join(fields, ", "))
}

// ValidationFields returns the per-field messages carried by a ValidationError.
func ValidationFields(err error) map[string][]string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() != CodeValidationFailed {
		return nil
	}
	fields, _ := oopsErr.Context()["fields"].(map[string][]string)
	return fields
}

// UserMessage returns the caller-facing message for an error. Storage and
// unknown failures are reduced to a generic message.
func UserMessage(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "internal error"
	}
	switch oopsErr.Code() {
	case CodeNotAuthenticated:
		return "Not authenticated"
	case CodeInvalidCredentials:
		return "Credentials are incorrect"
	case CodeAccountNotActive:
		if status, ok := oopsErr.Context()["status"].(string); ok {
			return fmt.Sprintf("User is not active, status is %s", status)
		}
		return "User is not active"
	case CodeAccountDeactivated:
		return "User is deactivated"
	case CodeValidationFailed:
		return "Validation failed"
	default:
		return "internal error"
	}
}
