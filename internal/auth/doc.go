// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package auth implements the credential lifecycle behind the GraphQL API.
//
// # Stores
//
// Durable state lives behind three repository boundaries, each owning its records:
//   - UserRepository - users, unique on email and username
//   - TokenRepository - opaque bearer tokens, stored as SHA-256 hashes
//   - ResetLedger - at most one live password reset token per email
//
// Implementations are in the postgres and redis subpackages. Stores enforce
// uniqueness themselves; callers treat ErrDuplicateUsername as a signal to
// regenerate and ErrDuplicateEmail as a lost registration race.
//
// # Flows
//
// Controller orchestrates login, registration, logout, forgot-password and
// reset-password. It holds no state between calls. Request identity is passed
// explicitly as a *Caller, which transports build with WithCaller.
package auth
