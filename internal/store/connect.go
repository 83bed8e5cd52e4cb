// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect reaches the database.
type ConnectOptions struct {
	URL string
	// Retries is the number of extra ping attempts after the first.
	Retries uint64
	// Backoff is the initial delay between attempts; it doubles each time,
	// capped at maxBackoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

const maxBackoff = 10 * time.Second

// Connect opens a pgx pool and waits until the database answers a ping.
// The pool is closed again if the database never becomes reachable.
func Connect(ctx context.Context, opts ConnectOptions) (*pgxpool.Pool, error) {
	if opts.URL == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool.Ping, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// pingWithRetry calls ping until it succeeds, the retries run out, or ctx
// is done.
func pingWithRetry(ctx context.Context, ping func(context.Context) error, opts ConnectOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.Backoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithMaxRetries(opts.Retries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable yet",
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("attempts", attempt).
			Wrap(err)
	}
	if attempt > 1 {
		logger.InfoContext(ctx, "database reachable", "attempts", attempt)
	}
	return nil
}
