// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/memory"
	"github.com/holomush/authsvc/internal/auth/postgres"
	"github.com/holomush/authsvc/internal/config"
	"github.com/holomush/authsvc/internal/httpapi"
	"github.com/holomush/authsvc/internal/logging"
	"github.com/holomush/authsvc/internal/observability"
	"github.com/holomush/authsvc/internal/store"
	"github.com/holomush/authsvc/pkg/errutil"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values use their default implementations.
type ServeDeps struct {
	// StoreFactory builds the credential store and returns a function that
	// releases it.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (auth.CredentialStore, func(), error)

	// Listen creates the HTTP listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// OnReady is called with the bound HTTP address once requests are
	// accepted.
	OnReady func(addr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the authsvc HTTP server and, unless metrics.addr is empty, the
metrics and health probe server. SIGINT or SIGTERM shuts both down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, cfg, nil)
		},
	}
}

// runServeWithDeps runs the server until ctx is done or a server fails.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.Listen == nil {
		deps.Listen = net.Listen
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup("authsvc", version, cfg.Log.Format, cmd.ErrOrStderr(), logging.Options{
		Level:        level,
		RedactFields: cfg.Log.RedactFields,
	})
	slog.SetDefault(logger)

	logger.Info("starting authsvc",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"store", cfg.Store.Driver,
		"hasher", cfg.Auth.Hasher,
	)

	credStore, closeStore, err := deps.StoreFactory(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher, err := auth.NewHasher(cfg.Auth.Hasher, cfg.Auth.Argon2.Params(), cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	var ready atomic.Bool

	var obsServer *observability.Server
	var metrics *observability.Metrics
	var obsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr,
			observability.WithLogger(logger),
			observability.WithReadiness(ready.Load),
		)
		metrics = obsServer.Metrics()
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	sessions, err := auth.NewSessionManager(credStore, hasher,
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithRecorder(metrics),
	)
	if err != nil {
		stopObservability(obsServer, cfg.HTTP.ShutdownTimeout, logger)
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Config{
		Service:        sessions,
		Logger:         logger,
		Metrics:        metrics,
		ExcludedPaths:  cfg.HTTP.ExcludedPaths,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Cookie: httpapi.CookieOptions{
			Secure: cfg.HTTP.CookieSecure,
			MaxAge: cfg.Auth.SessionTTL,
		},
	})
	if err != nil {
		stopObservability(obsServer, cfg.HTTP.ShutdownTimeout, logger)
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, cfg.HTTP.ShutdownTimeout, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()

	ready.Store(true)
	addr := listener.Addr().String()
	logger.Info("authsvc ready", "http_addr", addr)
	cmd.Println("authsvc listening on " + addr)
	if deps.OnReady != nil {
		deps.OnReady(addr)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr := <-httpErrCh:
		runErr = oops.Code("HTTP_SERVE_FAILED").With("addr", addr).Wrap(serveErr)
	case serveErr, ok := <-obsErrCh:
		if ok && serveErr != nil {
			runErr = oops.Code("OBSERVABILITY_SERVE_FAILED").With("addr", cfg.Metrics.Addr).Wrap(serveErr)
		}
	}

	ready.Store(false)
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errutil.LogError(logger, "error stopping HTTP server", oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err))
	}
	stopObservability(obsServer, cfg.HTTP.ShutdownTimeout, logger)

	logger.Info("shutdown complete")
	return runErr
}

func stopObservability(s *observability.Server, timeout time.Duration, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		errutil.LogError(logger, "error stopping observability server", err)
	}
}

// openStore builds the configured credential store. The postgres store
// connects with retry, then applies pending migrations when auto_migrate is
// set.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (auth.CredentialStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory credential store; users are lost on restart")
		return memory.New(), func() {}, nil
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, store.ConnectOptions{
			URL:     cfg.DatabaseURL,
			Retries: uint64(cfg.ConnectRetries), //nolint:gosec // validated non-negative
			Backoff: cfg.ConnectBackoff,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to database")
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DatabaseURL); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Info("database migrations applied")
		}
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("key", "store.driver").
			Errorf("unknown store driver %q", cfg.Driver)
	}
}

func migrateUp(databaseURL string) (err error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
