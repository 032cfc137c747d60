// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// SessionScheme resolves principals from a session cookie. The cookie
// name is configured (SESSION_NAME), the value is looked up through the
// injected resolver.
type SessionScheme struct {
	cookieName string
	sessions   SessionResolver
	logger     *slog.Logger
}

// NewSessionScheme creates a SessionScheme.
func NewSessionScheme(cookieName string, sessions SessionResolver, logger *slog.Logger) *SessionScheme {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionScheme{cookieName: cookieName, sessions: sessions, logger: logger}
}

// CookieName returns the configured session cookie name.
func (s *SessionScheme) CookieName() string { return s.cookieName }

// HasCredentials reports whether the session cookie is present.
func (s *SessionScheme) HasCredentials(r *http.Request) bool {
	_, err := r.Cookie(s.cookieName)
	return err == nil
}

// ResolvePrincipal looks the cookie value up in the session backend.
// A missing cookie or an unmatched session yields no principal.
func (s *SessionScheme) ResolvePrincipal(r *http.Request) *auth.User {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	user, err := s.sessions.UserFromSession(r.Context(), cookie.Value)
	if err != nil {
		errutil.LogError(s.logger, "session lookup failed", err)
		return nil
	}
	return user
}

// isNotFound reports whether err is the expected lookup-miss sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, auth.ErrNotFound)
}

// Compile-time interface check.
var _ Scheme = (*SessionScheme)(nil)
