// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the session manager over HTTP. Requests carry form
// values, responses are JSON, and the session travels in the session_id
// cookie.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/holomush/authsvc/internal/auth"
)

// Service is the part of auth.SessionManager the HTTP layer calls.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (*auth.UserRecord, error)
	ValidLogin(ctx context.Context, email, password string) bool
	CreateSession(ctx context.Context, email string) (string, bool)
	GetUserFromSession(ctx context.Context, token string) (*auth.UserRecord, bool)
	DestroySession(ctx context.Context, userID int64) error
	GetResetToken(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, newPassword string) error
}

var _ Service = (*auth.SessionManager)(nil)

// Config wires the router.
type Config struct {
	Service Service
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics HTTPObserver
	// ExcludedPaths are globs reachable without a session. Nil means
	// DefaultExcludedPaths; an empty slice protects every path.
	ExcludedPaths []string
	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string
	// RequestTimeout bounds each request. Zero disables it.
	RequestTimeout time.Duration
	Cookie         CookieOptions
}

// maxFormBytes bounds request bodies.
const maxFormBytes = 1 << 20

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	excluded := cfg.ExcludedPaths
	if excluded == nil {
		excluded = DefaultExcludedPaths
	}
	paths, err := NewPathMatcher(excluded)
	if err != nil {
		return nil, err
	}

	h := &handlers{svc: cfg.Service, cookie: cfg.Cookie}

	r := chi.NewRouter()
	r.Use(requestID(cfg.Logger))
	r.Use(accessLog(cfg.Metrics))
	r.Use(recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(requestTimeout(cfg.RequestTimeout))
	}
	r.Use(requireSession(cfg.Service, paths))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", h.index)
	r.Post("/users", h.registerUser)
	r.Post("/sessions", h.login)
	r.Delete("/sessions", h.logout)
	r.Get("/profile", h.profile)
	r.Post("/reset_password", h.resetToken)
	r.Put("/reset_password", h.updatePassword)

	return r, nil
}
