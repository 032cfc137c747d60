// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads service configuration from defaults, an optional
// YAML file, command-line flags, and the environment, in that order of
// precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Auth scheme names.
const (
	SchemeBasic   = "basic"
	SchemeSession = "session"
)

// Session backend names.
const (
	BackendStore  = "store"
	BackendMemory = "memory"
)

// DefaultSessionCookie is the session cookie name when SESSION_NAME is
// unset.
const DefaultSessionCookie = "session_id"

// Config holds all service settings.
type Config struct {
	ListenAddr     string   `koanf:"listen_addr"`
	MetricsAddr    string   `koanf:"metrics_addr"`
	LogFormat      string   `koanf:"log_format"`
	DatabaseURL    string   `koanf:"database_url"`
	SessionName    string   `koanf:"session_name"`
	AuthScheme     string   `koanf:"auth_scheme"`
	SessionBackend string   `koanf:"session_backend"`
	ExcludedPaths  []string `koanf:"excluded_paths"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:     ":5000",
		MetricsAddr:    "127.0.0.1:9100",
		LogFormat:      "json",
		SessionName:    DefaultSessionCookie,
		AuthScheme:     SchemeSession,
		SessionBackend: BackendStore,
		// "/" needs no entry: it is a prefix of every entry below, so the
		// bidirectional prefix rule already exempts it.
		ExcludedPaths: []string{"/users", "/sessions", "/reset_password"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then set flags, then environment variables.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the environment variables the original service
// honoured: SESSION_NAME, DATABASE_URL, and the PERSONAL_DATA_DB_*
// quartet, which composes a DSN when DATABASE_URL is absent.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SESSION_NAME"); v != "" {
		cfg.SessionName = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = personalDataDSN()
	}
}

// personalDataDSN composes a Postgres DSN from the PERSONAL_DATA_DB_*
// environment, or "" when no host is configured.
func personalDataDSN() string {
	host := os.Getenv("PERSONAL_DATA_DB_HOST")
	if host == "" {
		return ""
	}
	name := os.Getenv("PERSONAL_DATA_DB_NAME")
	user := os.Getenv("PERSONAL_DATA_DB_USERNAME")
	password := os.Getenv("PERSONAL_DATA_DB_PASSWORD")

	u := &url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + name,
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	return u.String()
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.AuthScheme != SchemeBasic && c.AuthScheme != SchemeSession {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth_scheme must be %q or %q, got %q", SchemeBasic, SchemeSession, c.AuthScheme)
	}
	if c.SessionBackend != BackendStore && c.SessionBackend != BackendMemory {
		return oops.Code("CONFIG_INVALID").
			Errorf("session_backend must be %q or %q, got %q", BackendStore, BackendMemory, c.SessionBackend)
	}
	if c.SessionName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session_name is required")
	}
	return nil
}

// String renders the config for startup logging without leaking the
// database credentials.
func (c *Config) String() string {
	dsn := c.DatabaseURL
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		dsn = u.Redacted()
	}
	return fmt.Sprintf("listen=%s scheme=%s backend=%s db=%s", c.ListenAddr, c.AuthScheme, c.SessionBackend, dsn)
}
