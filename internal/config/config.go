// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the authsvc configuration from command-line flags, an
// optional YAML file, and the environment.
package config

import (
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/logging"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Auth    AuthConfig    `koanf:"auth"`
	Store   StoreConfig   `koanf:"store"`
}

// HTTPConfig configures the public HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ExcludedPaths   []string      `koanf:"excluded_paths"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format       string   `koanf:"format"`
	Level        string   `koanf:"level"`
	RedactFields []string `koanf:"redact_fields"`
}

// AuthConfig configures password hashing and token lifetimes.
type AuthConfig struct {
	Hasher     string        `koanf:"hasher"`
	BcryptCost int           `koanf:"bcrypt_cost"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	ResetTTL   time.Duration `koanf:"reset_ttl"`
	Argon2     Argon2Config  `koanf:"argon2"`
}

// Argon2Config holds the argon2id cost parameters.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// Params converts the configuration into hasher parameters.
func (a Argon2Config) Params() auth.Argon2Params {
	return auth.Argon2Params{Time: a.Time, MemoryKiB: a.MemoryKiB, Threads: a.Threads}
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Driver         string        `koanf:"driver"`
	DatabaseURL    string        `koanf:"database_url"`
	AutoMigrate    bool          `koanf:"auto_migrate"`
	ConnectRetries int           `koanf:"connect_retries"`
	ConnectBackoff time.Duration `koanf:"connect_backoff"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.RequestTimeout < 0 {
		return invalid("http.request_timeout", "http.request_timeout cannot be negative")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "http.shutdown_timeout must be positive")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Auth.Hasher {
	case auth.AlgorithmArgon2id:
		if c.Auth.Argon2.Time == 0 || c.Auth.Argon2.MemoryKiB == 0 || c.Auth.Argon2.Threads == 0 {
			return invalid("auth.argon2", "auth.argon2 time, memory_kib and threads must be positive")
		}
	case auth.AlgorithmBcrypt:
		if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
			return invalid("auth.bcrypt_cost", "auth.bcrypt_cost must be between %d and %d, got %d",
				bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
		}
	default:
		return invalid("auth.hasher", "auth.hasher must be %q or %q, got %q",
			auth.AlgorithmArgon2id, auth.AlgorithmBcrypt, c.Auth.Hasher)
	}
	if c.Auth.SessionTTL < 0 {
		return invalid("auth.session_ttl", "auth.session_ttl cannot be negative")
	}
	if c.Auth.ResetTTL < 0 {
		return invalid("auth.reset_ttl", "auth.reset_ttl cannot be negative")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "store.database_url or DATABASE_URL is required for the postgres driver")
		}
	default:
		return invalid("store.driver", "store.driver must be %q or %q, got %q",
			DriverMemory, DriverPostgres, c.Store.Driver)
	}
	if c.Store.ConnectRetries < 0 {
		return invalid("store.connect_retries", "store.connect_retries cannot be negative")
	}
	if c.Store.ConnectBackoff <= 0 {
		return invalid("store.connect_backoff", "store.connect_backoff must be positive")
	}

	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
