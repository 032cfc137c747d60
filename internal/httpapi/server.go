// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the authentication service over HTTP:
// registration, login, logout, profile, and the password-reset
// lifecycle.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// ServerConfig carries the dependencies for a Server. Engine, Sessions,
// and Controller are required.
type ServerConfig struct {
	Addr       string
	CookieName string
	Engine     *auth.Engine
	Sessions   auth.SessionManager
	Controller *access.Controller
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Server is the public HTTP surface of the service.
type Server struct {
	addr       string
	cookieName string
	engine     *auth.Engine
	sessions   auth.SessionManager
	metrics    *observability.Metrics
	logger     *slog.Logger
	router     *mux.Router
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server and installs its routes behind the access
// controller.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, oops.Code("HTTP_SERVER_INVALID").Errorf("auth engine is required")
	}
	if cfg.Sessions == nil {
		return nil, oops.Code("HTTP_SERVER_INVALID").Errorf("session manager is required")
	}
	if cfg.Controller == nil {
		return nil, oops.Code("HTTP_SERVER_INVALID").Errorf("access controller is required")
	}
	if cfg.CookieName == "" {
		return nil, oops.Code("HTTP_SERVER_INVALID").Errorf("cookie name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:       cfg.Addr,
		cookieName: cfg.CookieName,
		engine:     cfg.Engine,
		sessions:   cfg.Sessions,
		metrics:    cfg.Metrics,
		logger:     logger,
	}

	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(cfg.Controller.Middleware))
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.handleLogout).Methods(http.MethodDelete)
	r.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	r.HandleFunc("/reset_password", s.handleResetToken).Methods(http.MethodPost)
	r.HandleFunc("/reset_password", s.handleUpdatePassword).Methods(http.MethodPut)
	s.router = r

	return s, nil
}

// Handler returns the root handler, routes plus access middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It returns an error channel that receives any
// HTTP server error after startup; the channel is closed on graceful
// shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown http server").Wrap(err)
		}
	}

	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
