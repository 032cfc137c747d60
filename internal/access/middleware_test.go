// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
)

// stubScheme is a canned-answer Scheme for middleware tests.
type stubScheme struct {
	has  bool
	user *auth.User
}

func (s *stubScheme) HasCredentials(*http.Request) bool { return s.has }

func (s *stubScheme) ResolvePrincipal(*http.Request) *auth.User { return s.user }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestController_Middleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("exempt path passes without credentials", func(t *testing.T) {
		ctrl := access.NewController([]string{"/public"}, &stubScheme{}, nil)

		rec := httptest.NewRecorder()
		ctrl.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/public", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing credentials yield 401", func(t *testing.T) {
		ctrl := access.NewController(nil, &stubScheme{has: false}, nil)

		rec := httptest.NewRecorder()
		ctrl.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized", decodeError(t, rec))
	})

	t.Run("unresolved principal yields 403", func(t *testing.T) {
		ctrl := access.NewController(nil, &stubScheme{has: true, user: nil}, nil)

		rec := httptest.NewRecorder()
		ctrl.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Forbidden", decodeError(t, rec))
	})

	t.Run("resolved principal reaches the handler via context", func(t *testing.T) {
		user := &auth.User{Email: "bob@example.com"}
		ctrl := access.NewController(nil, &stubScheme{has: true, user: user}, nil)

		var seen *auth.User
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = access.PrincipalFrom(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		ctrl.Middleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "bob@example.com", seen.Email)
	})

	t.Run("denied hook sees each rejection status", func(t *testing.T) {
		ctrl := access.NewController(nil, &stubScheme{has: false}, nil)

		var statuses []int
		ctrl.OnDenied(func(status int) { statuses = append(statuses, status) })

		rec := httptest.NewRecorder()
		ctrl.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))

		assert.Equal(t, []int{http.StatusUnauthorized}, statuses)
	})
}

func TestPrincipalContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		user := &auth.User{Email: "bob@example.com"}
		ctx := access.WithPrincipal(httptest.NewRequest("GET", "/", nil).Context(), user)
		assert.Equal(t, user, access.PrincipalFrom(ctx))
	})

	t.Run("absent principal is nil", func(t *testing.T) {
		ctx := httptest.NewRequest("GET", "/", nil).Context()
		assert.Nil(t, access.PrincipalFrom(ctx))
	})
}
