// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Controller gates every request: paths that require auth must resolve
// a principal through the configured scheme before the downstream
// handler runs.
type Controller struct {
	rules    []Rule
	scheme   Scheme
	logger   *slog.Logger
	onDenied func(status int)
}

// NewController creates a Controller with the given excluded-path
// entries and authentication scheme.
func NewController(excluded []string, scheme Scheme, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{rules: ParseRules(excluded), scheme: scheme, logger: logger}
}

// OnDenied registers a hook invoked with the HTTP status of every
// request the controller rejects. Used for counting denials without
// this package knowing about metrics.
func (c *Controller) OnDenied(fn func(status int)) {
	c.onDenied = fn
}

// RequiresAuth reports whether the path must be authenticated under the
// controller's rules.
func (c *Controller) RequiresAuth(path string) bool {
	return requiresAuth(path, c.rules)
}

// Middleware wraps next with the access decision: exempt paths pass
// through, requests without credentials get 401, requests whose
// credentials resolve no principal get 403. On success the principal is
// attached to the request context.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.RequiresAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !c.scheme.HasCredentials(r) {
			c.deny(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user := c.scheme.ResolvePrincipal(r)
		if user == nil {
			c.logger.DebugContext(r.Context(), "credentials rejected", "path", r.URL.Path)
			c.deny(w, http.StatusForbidden, "Forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

func (c *Controller) deny(w http.ResponseWriter, status int, message string) {
	if c.onDenied != nil {
		c.onDenied(status)
	}
	writeJSONError(w, status, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck // nothing to do about a failed error write
}
