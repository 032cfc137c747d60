// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"context"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Scheme is an interchangeable strategy for deriving a principal from a
// request. Implementations never surface errors to the caller: missing
// headers, malformed encodings, and failed verification all resolve to
// no principal.
type Scheme interface {
	// HasCredentials reports whether the request carries this scheme's
	// credentials at all, before any validation.
	HasCredentials(r *http.Request) bool

	// ResolvePrincipal returns the authenticated user for the request,
	// or nil when the credentials are absent or invalid.
	ResolvePrincipal(r *http.Request) *auth.User
}

// UserFinder is the slice of the credential store the Basic scheme
// needs.
type UserFinder interface {
	FindUserBy(ctx context.Context, q auth.Query) (*auth.User, error)
}

// SessionResolver maps a session id back to its user. Both session
// backends (the engine and the in-memory table) satisfy it.
type SessionResolver interface {
	UserFromSession(ctx context.Context, sessionID string) (*auth.User, error)
}
