// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "github.com/google/uuid"

// TokenSource produces unguessable unique identifiers for sessions and
// reset tokens.
type TokenSource interface {
	// NewToken returns a fresh identifier. Collisions within the
	// process lifetime must be negligible.
	NewToken() string
}

// UUIDSource implements TokenSource with random (version 4) UUIDs:
// 128 bits of randomness in the standard textual encoding.
type UUIDSource struct{}

// NewToken returns a new random UUID string.
func (UUIDSource) NewToken() string {
	return uuid.NewString()
}

// Compile-time interface check.
var _ TokenSource = UUIDSource{}
