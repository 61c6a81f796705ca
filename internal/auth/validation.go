// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the only password policy enforced.
const MinPasswordLength = 8

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email    string
	Password string
	Country  string
	Currency string
}

// validEmail accepts a bare address such as "a@x.com"; display names and
// angle brackets are rejected.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email, "@")
}

func validatePassword(fields FieldErrors, password string) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		fields.Add("password", "The password must be at least 8 characters.")
	}
}

// validateRegistration checks every field and reports all failures at once.
// Only the uniqueness check touches the store; its failure is a StorageError.
func (c *Controller) validateRegistration(ctx context.Context, in RegisterInput) error {
	fields := FieldErrors{}

	switch {
	case in.Email == "":
		fields.Add("email", "The email field is required.")
	case !validEmail(in.Email):
		fields.Add("email", "The email must be a valid email address.")
	default:
		_, err := c.users.GetByEmail(ctx, in.Email)
		switch {
		case err == nil:
			fields.Add("email", "The email has already been taken.")
		case !errors.Is(err, ErrNotFound):
			return StorageError("check email uniqueness", err)
		}
	}

	validatePassword(fields, in.Password)

	if strings.TrimSpace(in.Country) == "" {
		fields.Add("country", "The country field is required.")
	}
	if strings.TrimSpace(in.Currency) == "" {
		fields.Add("currency", "The currency field is required.")
	}

	return fields.Err()
}
