// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const basicPrefix = "Basic "

// BasicScheme resolves principals from the Authorization header:
// "Basic " + base64(email:password), verified against the credential
// store. Every decode or verification failure yields no principal.
type BasicScheme struct {
	users  UserFinder
	hasher auth.PasswordHasher
	logger *slog.Logger
}

// NewBasicScheme creates a BasicScheme.
func NewBasicScheme(users UserFinder, hasher auth.PasswordHasher, logger *slog.Logger) *BasicScheme {
	if logger == nil {
		logger = slog.Default()
	}
	return &BasicScheme{users: users, hasher: hasher, logger: logger}
}

// HasCredentials reports whether an Authorization header with the Basic
// prefix is present.
func (s *BasicScheme) HasCredentials(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), basicPrefix)
}

// ResolvePrincipal decodes the header, splits on the first colon, and
// verifies the password against the stored digest.
func (s *BasicScheme) ResolvePrincipal(r *http.Request) *auth.User {
	email, password, ok := decodeBasic(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	user, err := s.users.FindUserBy(r.Context(), auth.ByEmail(email))
	if err != nil {
		// A lookup miss is an expected negative; anything else is an
		// infrastructure failure worth logging, but the contract stays
		// "no principal".
		if !isNotFound(err) {
			errutil.LogError(s.logger, "basic auth store lookup failed", err)
		}
		return nil
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil
	}
	return user
}

// decodeBasic extracts (identity, secret) from an Authorization header
// value. ok is false for a missing header, wrong prefix, invalid
// base64, or a payload without a colon.
func decodeBasic(header string) (email, password string, ok bool) {
	if !strings.HasPrefix(header, basicPrefix) {
		return "", "", false
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, basicPrefix))
	if err != nil {
		return "", "", false
	}

	email, password, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", false
	}
	return email, password, true
}

// Compile-time interface check.
var _ Scheme = (*BasicScheme)(nil)
