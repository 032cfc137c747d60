// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the authentication core: user records, the
// credential store contract, password hashing, token generation, and the
// engine that orchestrates registration, login, sessions, and password
// resets.
package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is an account record. Email is unique and immutable after
// creation. SessionID and ResetToken are nil unless a session is active
// or a reset has been requested; accounts are never physically deleted.
type User struct {
	ID             ulid.ULID
	Email          string
	HashedPassword string
	SessionID      *string
	ResetToken     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Query is an exact-match conjunction over user fields. At least one
// field must be set; stores reject an empty query with ErrInvalidQuery.
type Query struct {
	ID         *ulid.ULID
	Email      *string
	SessionID  *string
	ResetToken *string
}

// IsEmpty reports whether no query fields are set.
func (q Query) IsEmpty() bool {
	return q.ID == nil && q.Email == nil && q.SessionID == nil && q.ResetToken == nil
}

// ByEmail returns a query matching on email.
func ByEmail(email string) Query { return Query{Email: &email} }

// ByID returns a query matching on user ID.
func ByID(id ulid.ULID) Query { return Query{ID: &id} }

// BySessionID returns a query matching on session ID.
func BySessionID(sessionID string) Query { return Query{SessionID: &sessionID} }

// ByResetToken returns a query matching on reset token.
func ByResetToken(token string) Query { return Query{ResetToken: &token} }

// Field names a mutable user column for partial updates.
type Field string

// Updatable fields. Anything else yields ErrInvalidField.
const (
	FieldHashedPassword Field = "hashed_password"
	FieldSessionID      Field = "session_id"
	FieldResetToken     Field = "reset_token"
)

// Valid reports whether f names an updatable field.
func (f Field) Valid() bool {
	switch f {
	case FieldHashedPassword, FieldSessionID, FieldResetToken:
		return true
	}
	return false
}

// UserStore is the credential store contract. Implementations must
// enforce email uniqueness at insert time and make RedeemResetToken an
// atomic compare-and-clear, so that check-then-act races in the engine
// serialize in storage.
type UserStore interface {
	// AddUser inserts a new user and returns the stored record.
	// Returns ErrDuplicateEmail if the email already exists.
	AddUser(ctx context.Context, email, hashedPassword string) (*User, error)

	// FindUserBy returns the first user matching the query.
	// Returns ErrInvalidQuery for an empty query and ErrNotFound when
	// nothing matches.
	FindUserBy(ctx context.Context, q Query) (*User, error)

	// UpdateUser applies a partial update. A nil value clears a nullable
	// field. Returns ErrNotFound for an unknown id and ErrInvalidField
	// for an unrecognized field name.
	UpdateUser(ctx context.Context, id ulid.ULID, fields map[Field]*string) error

	// RedeemResetToken atomically sets the password hash and clears the
	// reset token on the user whose reset_token equals token. Returns
	// ErrNotFound when no user holds the token, which is also the case
	// for a token that was already redeemed.
	RedeemResetToken(ctx context.Context, token, hashedPassword string) (*User, error)
}
