// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors shared between the credential store and the engine.
// Callers test for them with errors.Is; service layers wrap them with
// oops codes for logging context.
var (
	// ErrNotFound is returned when a lookup matches no user.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when registration would violate
	// email uniqueness.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidQuery is returned when a find predicate has no fields set.
	ErrInvalidQuery = errors.New("query has no fields")

	// ErrInvalidField is returned when an update names an unknown field.
	ErrInvalidField = errors.New("unknown update field")

	// ErrInvalidToken is returned when a reset token does not match any
	// user, including tokens that were already redeemed.
	ErrInvalidToken = errors.New("invalid reset token")
)
