// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// handleIndex is the base route.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

// handleRegister creates a new account from form fields email and
// password. A taken email yields 400 without touching any state.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	user, err := s.engine.Register(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			s.countRegistration("duplicate")
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
			return
		}
		s.fail(w, r, "register failed", err)
		return
	}

	s.countRegistration("success")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"email":   user.Email,
		"message": "user created",
	})
}

// handleLogin validates form credentials and, on success, opens a
// session and sets the session cookie. Invalid credentials yield 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	ok, err := s.engine.Login(r.Context(), email, password)
	if err != nil {
		s.fail(w, r, "login failed", err)
		return
	}
	if !ok {
		s.countLogin("failure")
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	token, err := s.sessions.CreateSession(r.Context(), email)
	if err != nil {
		s.fail(w, r, "session creation failed", err)
		return
	}
	if token == nil {
		// The account vanished between verification and session
		// creation; treat it as a failed login.
		s.countLogin("failure")
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.countLogin("success")
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    *token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "logged in",
	})
}

// handleLogout ends the session named by the cookie, expires the
// cookie, and redirects to the base route. No resolvable session means
// 403.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(r)
	if user == nil {
		s.writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if err := s.sessions.DestroySession(r.Context(), user.ID); err != nil {
		s.fail(w, r, "session destroy failed", err)
		return
	}

	if s.metrics != nil {
		s.metrics.SessionsDestroyed.Inc()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleProfile returns the email of the session's user, 403 when no
// session resolves.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(r)
	if user == nil {
		s.writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

// handleResetToken issues a reset token for the form email. An unknown
// email yields 403.
func (s *Server) handleResetToken(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")

	token, err := s.engine.RequestPasswordReset(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			s.writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		s.fail(w, r, "reset request failed", err)
		return
	}

	s.countResetToken("issued")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"email":       email,
		"reset_token": token,
	})
}

// handleUpdatePassword redeems a reset token and installs the new
// password. An unknown or spent token yields 403.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	token := r.FormValue("reset_token")
	newPassword := r.FormValue("new_password")

	if err := s.engine.UpdatePassword(r.Context(), token, newPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.countResetToken("rejected")
			s.writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		s.fail(w, r, "password update failed", err)
		return
	}

	s.countResetToken("redeemed")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "Password updated",
	})
}

// sessionUser resolves the request's user: the principal the access
// middleware attached if present, the session cookie otherwise. Routes
// in the excluded list still see a principal this way when the caller
// sends a valid cookie.
func (s *Server) sessionUser(r *http.Request) *auth.User {
	if user := access.PrincipalFrom(r.Context()); user != nil {
		return user
	}

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

// fail logs an unexpected error and answers 500 without leaking
// internals.
func (s *Server) fail(w http.ResponseWriter, _ *http.Request, msg string, err error) {
	errutil.LogError(s.logger, msg, err)
	s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}

func (s *Server) countRegistration(result string) {
	if s.metrics != nil {
		s.metrics.Registrations.WithLabelValues(result).Inc()
	}
}

func (s *Server) countResetToken(event string) {
	if s.metrics != nil {
		s.metrics.ResetTokens.WithLabelValues(event).Inc()
	}
}
