// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server exposing registration, login, logout,
profile, and password-reset endpoints, plus a metrics/health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().String("listen-addr", defaults.ListenAddr, "HTTP listen address")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("auth-scheme", defaults.AuthScheme, "authentication scheme (basic or session)")
	cmd.Flags().String("session-backend", defaults.SessionBackend, "session backend (store or memory)")
	cmd.Flags().String("session-name", defaults.SessionName, "session cookie name")
	cmd.Flags().StringSlice("excluded-paths", defaults.ExcludedPaths, "paths exempt from authentication")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logging.SetDefault("gatehouse", version, cfg.LogFormat)
	logger := slog.Default()

	logger.Info("starting gatehouse", "config", cfg.String())

	// Credential store: Postgres when a database is configured, the
	// in-process store otherwise (development and tests only).
	var userStore auth.UserStore
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		userStore = authpg.NewUserStore(pool)
		logger.Info("connected to database")
	} else {
		userStore = memory.NewStore()
		logger.Warn("no database configured, using in-memory credential store")
	}

	hasher := auth.NewArgon2idHasher()
	tokens := auth.UUIDSource{}

	engine, err := auth.NewEngineWithLogger(userStore, hasher, tokens, logger)
	if err != nil {
		return err
	}

	sessions, err := buildSessions(cfg, engine, userStore, tokens)
	if err != nil {
		return err
	}

	scheme, err := buildScheme(cfg, userStore, hasher, sessions, logger)
	if err != nil {
		return err
	}

	controller := access.NewController(cfg.ExcludedPaths, scheme, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability listener, when configured.
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, readiness(pool))
		metrics = obsServer.Metrics()

		controller.OnDenied(func(status int) {
			metrics.RequestsDenied.WithLabelValues(strconv.Itoa(status)).Inc()
		})

		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	httpServer, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:       cfg.ListenAddr,
		CookieName: cfg.SessionName,
		Engine:     engine,
		Sessions:   sessions,
		Controller: controller,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpErrCh, err := httpServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started on " + httpServer.Addr())
	logger.Info("gatehouse ready", "addr", httpServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildSessions selects the session backend: the engine keeps sessions
// on the user record, the table keeps them in process memory.
func buildSessions(cfg *config.Config, engine *auth.Engine, userStore auth.UserStore, tokens auth.TokenSource) (auth.SessionManager, error) {
	switch cfg.SessionBackend {
	case config.BackendStore:
		return engine, nil
	case config.BackendMemory:
		return auth.NewTableSessions(auth.NewSessionTable(), userStore, tokens)
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// buildScheme selects how requests prove who they are.
func buildScheme(cfg *config.Config, userStore auth.UserStore, hasher auth.PasswordHasher, sessions auth.SessionManager, logger *slog.Logger) (access.Scheme, error) {
	switch cfg.AuthScheme {
	case config.SchemeBasic:
		return access.NewBasicScheme(userStore, hasher, logger), nil
	case config.SchemeSession:
		return access.NewSessionScheme(cfg.SessionName, sessions, logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown auth scheme %q", cfg.AuthScheme)
	}
}

// readiness reports ready when the database answers a ping, or always
// when running without one.
func readiness(pool *pgxpool.Pool) observability.ReadinessChecker {
	if pool == nil {
		return func() bool { return true }
	}
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx) == nil
	}
}

func stopObservability(obsServer *observability.Server) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so one failed listener brings the process down
// cleanly. Exits on error, channel close, or context cancellation.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
