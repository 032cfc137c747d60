// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Engine orchestrates registration, login, session lifecycle, and
// password-reset lifecycle over a UserStore.
//
// Error policy: lookup misses and credential mismatches are expected
// outcomes and come back as nil users or false, never as errors. Only
// genuine precondition violations (duplicate email, invalid reset
// token) surface as errors the caller must branch on.
type Engine struct {
	store  UserStore
	hasher PasswordHasher
	tokens TokenSource
	logger *slog.Logger
}

// NewEngine creates an Engine. All dependencies are required.
func NewEngine(store UserStore, hasher PasswordHasher, tokens TokenSource) (*Engine, error) {
	return NewEngineWithLogger(store, hasher, tokens, slog.Default())
}

// NewEngineWithLogger creates an Engine with an explicit logger.
func NewEngineWithLogger(store UserStore, hasher PasswordHasher, tokens TokenSource, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("token source is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("logger is required")
	}
	return &Engine{store: store, hasher: hasher, tokens: tokens, logger: logger}, nil
}

// Register creates a new account. The user is durably stored before it
// is returned. Returns ErrDuplicateEmail (wrapped) if the email is
// taken, without mutating any state; the store's uniqueness constraint
// closes the check-then-insert race.
func (e *Engine) Register(ctx context.Context, email, password string) (*User, error) {
	_, err := e.store.FindUserBy(ctx, ByEmail(email))
	if err == nil {
		return nil, oops.Code("AUTH_EMAIL_TAKEN").
			With("email", email).
			Wrap(ErrDuplicateEmail)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	hashed, err := e.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := e.store.AddUser(ctx, email, hashed)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost the race against a concurrent registration.
			return nil, oops.Code("AUTH_EMAIL_TAKEN").
				With("email", email).
				Wrap(ErrDuplicateEmail)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	e.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login reports whether the credentials are valid. Unknown email, empty
// password, and digest mismatch all fail closed with (false, nil); an
// error is returned only when the store itself fails.
func (e *Engine) Login(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}

	user, err := e.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	return e.hasher.Verify(password, user.HashedPassword), nil
}

// CreateSession issues a new session token for the user with the given
// email and stores it on the record, displacing any prior session
// (last-login-wins). Returns (nil, nil) when the user cannot be
// resolved so that login flows read it as a failed login.
func (e *Engine) CreateSession(ctx context.Context, email string) (*string, error) {
	user, err := e.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token := e.tokens.NewToken()
	if err := e.store.UpdateUser(ctx, user.ID, map[Field]*string{FieldSessionID: &token}); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "store session id").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	e.logger.DebugContext(ctx, "session created", "user_id", user.ID.String())
	return &token, nil
}

// UserFromSession resolves the user holding the given session id.
// An empty id or an unmatched lookup yields (nil, nil), never an error.
func (e *Engine) UserFromSession(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, nil
	}

	user, err := e.store.FindUserBy(ctx, BySessionID(sessionID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").
			With("operation", "find user by session id").
			Wrap(err)
	}
	return user, nil
}

// DestroySession clears the session id on the user record. Unknown
// user ids are swallowed; the operation is idempotent.
func (e *Engine) DestroySession(ctx context.Context, userID ulid.ULID) error {
	err := e.store.UpdateUser(ctx, userID, map[Field]*string{FieldSessionID: nil})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_SESSION_DESTROY_FAILED").
			With("operation", "clear session id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account with the
// given email. Unlike the session operations this surfaces a hard error
// for an unknown email, because the HTTP layer must distinguish
// "cannot reset" from "reset issued".
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := e.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_RESET_UNKNOWN_EMAIL").
				With("email", email).
				Wrap(ErrNotFound)
		}
		return "", oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token := e.tokens.NewToken()
	if err := e.store.UpdateUser(ctx, user.ID, map[Field]*string{FieldResetToken: &token}); err != nil {
		return "", oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	e.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())
	return token, nil
}

// UpdatePassword redeems a reset token: stores the new password hash
// and clears the token in one atomic store operation, so each token is
// usable exactly once even under concurrent redemption. Returns
// ErrInvalidToken (wrapped) for an unknown or already-redeemed token.
func (e *Engine) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	hashed, err := e.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_UPDATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := e.store.RedeemResetToken(ctx, resetToken, hashed)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return oops.Code("AUTH_PASSWORD_UPDATE_FAILED").
			With("operation", "redeem reset token").
			Wrap(err)
	}

	e.logger.InfoContext(ctx, "password updated", "user_id", user.ID.String())
	return nil
}
