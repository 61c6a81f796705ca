// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("turnstile/auth")

// dummyPasswordHash is verified when no user matches the email so that the
// response time does not reveal whether an account exists.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// TokenService is the token issuer as seen by the flows.
type TokenService interface {
	Mint(ctx context.Context, userID ulid.ULID, clientLabel string) (string, error)
	Revoke(ctx context.Context, tokenID ulid.ULID) error
	RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error)
}

// Usernames draws free usernames.
type Usernames interface {
	Generate(ctx context.Context) (string, error)
	MaxAttempts() int
}

// ControllerConfig holds the Controller's collaborators. All are required.
type ControllerConfig struct {
	Users     UserRepository
	Tokens    TokenService
	Ledger    ResetLedger
	Usernames Usernames
	Hasher    PasswordHasher
	Notifier  Notifier
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithClientLabel sets the label attached to tokens minted by Login.
func WithClientLabel(label string) ControllerOption {
	return func(c *Controller) {
		if label != "" {
			c.clientLabel = label
		}
	}
}

// WithEmailNormalizer sets how emails are normalized before store calls.
func WithEmailNormalizer(n EmailNormalizer) ControllerOption {
	return func(c *Controller) {
		if n != nil {
			c.normalize = n
		}
	}
}

// Controller runs the credential lifecycle flows. It keeps no state between
// calls; every durable change goes through its stores.
type Controller struct {
	users       UserRepository
	tokens      TokenService
	ledger      ResetLedger
	usernames   Usernames
	hasher      PasswordHasher
	notifier    Notifier
	logger      *slog.Logger
	clock       func() time.Time
	clientLabel string
	normalize   EmailNormalizer
}

// NewController creates a Controller.
func NewController(cfg ControllerConfig, opts ...ControllerOption) (*Controller, error) {
	switch {
	case cfg.Users == nil:
		return nil, oops.Errorf("user repository is required")
	case cfg.Tokens == nil:
		return nil, oops.Errorf("token service is required")
	case cfg.Ledger == nil:
		return nil, oops.Errorf("reset ledger is required")
	case cfg.Usernames == nil:
		return nil, oops.Errorf("username generator is required")
	case cfg.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case cfg.Notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}

	c := &Controller{
		users:       cfg.Users,
		tokens:      cfg.Tokens,
		ledger:      cfg.Ledger,
		usernames:   cfg.Usernames,
		hasher:      cfg.Hasher,
		notifier:    cfg.Notifier,
		logger:      slog.Default(),
		clock:       time.Now,
		clientLabel: DefaultClientLabel,
		normalize:   CaseInsensitiveEmails,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login verifies credentials and returns a new plaintext bearer token.
// Unknown emails and wrong passwords both yield InvalidCredentials.
func (c *Controller) Login(ctx context.Context, email, password string) (token string, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { c.finish(span, FlowLogin, true, err) }()

	email = c.normalize(email)
	user, lookupErr := c.users.GetByEmail(ctx, email)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
		user = nil
	default:
		return "", StorageError("get user by email", lookupErr)
	}

	// Always verify so both branches cost the same.
	valid, verifyErr := c.hasher.Verify(password, targetHash)
	if user == nil {
		return "", ErrInvalidCredentials()
	}
	if verifyErr != nil {
		return "", StorageError("verify password", verifyErr)
	}
	if !valid {
		return "", ErrInvalidCredentials()
	}

	if !user.IsActive() {
		return "", ErrAccountNotActive(user.Status)
	}
	if user.IsDeactivated() {
		return "", ErrAccountDeactivated()
	}

	c.upgradeHash(ctx, user, password)

	token, err = c.tokens.Mint(ctx, user.ID, c.clientLabel)
	if err != nil {
		return "", err //nolint:wrapcheck // issuer returns coded errors
	}
	span.SetAttributes(attribute.String("auth.user_id", user.ID.String()))
	return token, nil
}

// upgradeHash replaces a legacy hash after a successful login. Failures are
// logged; the login still succeeds.
func (c *Controller) upgradeHash(ctx context.Context, user *User, password string) {
	if !c.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := c.hasher.Hash(password)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to rehash legacy password",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	if err := c.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		c.logger.WarnContext(ctx, "failed to store upgraded password hash",
			"user_id", user.ID.String(),
			"error", err)
	}
}

// Register creates an account and sends a verification notification branded
// for the caller's host. It returns false, without notifying, when a
// concurrent registration claimed the email between validation and insert.
func (c *Controller) Register(ctx context.Context, caller *Caller, in RegisterInput) (created bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { c.finish(span, FlowRegister, created, err) }()

	in.Email = c.normalize(in.Email)
	if err := c.validateRegistration(ctx, in); err != nil {
		return false, err
	}

	hash, err := c.hasher.Hash(in.Password)
	if err != nil {
		return false, StorageError("hash password", err)
	}

	user, err := c.createUser(ctx, in, hash)
	if errors.Is(err, ErrDuplicateEmail) {
		c.logger.InfoContext(ctx, "registration lost race on email")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var domain string
	if caller != nil {
		domain = MainDomainPart(caller.Host)
	}
	if err := c.notifier.SendVerification(ctx, user, domain); err != nil {
		c.logger.WarnContext(ctx, "failed to send verification notification",
			"user_id", user.ID.String(),
			"error", err)
	}

	span.SetAttributes(attribute.String("auth.user_id", user.ID.String()))
	return true, nil
}

// createUser inserts the user, drawing a new username whenever the store
// rejects the previous one as taken. The number of inserts is capped by the
// generator's attempt limit.
func (c *Controller) createUser(ctx context.Context, in RegisterInput, passwordHash string) (*User, error) {
	var user *User
	inserts := 0

	backoff := retry.WithMaxRetries(uint64(max(c.usernames.MaxAttempts()-1, 0)), retry.NewConstant(usernameBackoff)) //nolint:gosec // non-negative
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		username, err := c.usernames.Generate(ctx)
		if err != nil {
			return err
		}
		candidate, err := NewUser(in.Email, username, passwordHash, in.Country, in.Currency, c.clock())
		if err != nil {
			return err
		}
		inserts++
		if err := c.users.Create(ctx, candidate); err != nil {
			switch {
			case errors.Is(err, ErrDuplicateUsername):
				return retry.RetryableError(err)
			case errors.Is(err, ErrDuplicateEmail):
				return err
			default:
				return StorageError("create user", err)
			}
		}
		user = candidate
		return nil
	})

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrDuplicateUsername):
		return nil, oops.Code(CodeStorage).
			With("operation", "create user").
			With("attempts", inserts).
			Errorf("username collided on every insert")
	default:
		return nil, err
	}
}

// Logout revokes the token the caller authenticated with. Other tokens of the
// same user stay valid. A revocation that fails is reported as false.
func (c *Controller) Logout(ctx context.Context, caller *Caller) (revoked bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { c.finish(span, FlowLogout, revoked, err) }()

	if !caller.Authenticated() {
		return false, ErrNotAuthenticated()
	}

	if err := c.tokens.Revoke(ctx, caller.Token.ID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.WarnContext(ctx, "failed to revoke token",
				"token_id", caller.Token.ID.String(),
				"error", err)
		}
		return false, nil
	}
	return true, nil
}

// ForgotPassword stores a fresh reset token for the email and hands it to the
// notifier. Unknown emails return false with no ledger write.
func (c *Controller) ForgotPassword(ctx context.Context, email string) (issued bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer func() { c.finish(span, FlowForgotPassword, issued, err) }()

	email = c.normalize(email)
	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, StorageError("get user by email", err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return false, StorageError("generate reset token", err)
	}
	if err := c.ledger.Upsert(ctx, email, hash, c.clock()); err != nil {
		return false, StorageError("upsert reset token", err)
	}

	if err := c.notifier.SendPasswordReset(ctx, token, user); err != nil {
		c.logger.WarnContext(ctx, "failed to send password reset notification",
			"user_id", user.ID.String(),
			"error", err)
	}
	return true, nil
}

// ResetPassword consumes a reset token and replaces the user's password.
// A token that does not match the ledger yields false before the password
// is looked at. The token is consumed atomically before the password is
// written, so of several concurrent calls with one token at most one
// succeeds, and a token issued in between is left alone. Every token of
// the user is revoked after the write returns.
func (c *Controller) ResetPassword(ctx context.Context, email, token, newPassword string) (reset bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { c.finish(span, FlowResetPassword, reset, err) }()

	email = c.normalize(email)
	if _, err := c.ledger.Find(ctx, email, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, StorageError("find reset token", err)
	}

	fields := FieldErrors{}
	validatePassword(fields, newPassword)
	if err := fields.Err(); err != nil {
		return false, err
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return false, StorageError("hash password", err)
	}

	if _, err := c.ledger.Consume(ctx, email, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Used or replaced since Find.
			return false, nil
		}
		return false, StorageError("consume reset token", err)
	}

	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, StorageError("get user by email", err)
	}

	if err := c.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return false, StorageError("update password hash", err)
	}

	revoked, err := c.tokens.RevokeAll(ctx, user.ID)
	if err != nil {
		return false, err //nolint:wrapcheck // issuer returns coded errors
	}
	span.SetAttributes(attribute.Int64("auth.tokens_revoked", revoked))
	return true, nil
}

// finish records metrics and closes the flow span.
func (c *Controller) finish(span trace.Span, flow string, ok bool, err error) {
	outcome := flowOutcome(ok, err)
	RecordFlow(flow, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
