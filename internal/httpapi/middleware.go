// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/pkg/errutil"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// HTTPObserver records finished requests. observability.Metrics implements it.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

type contextKey int

const (
	userKey contextKey = iota
	requestIDKey
	loggerKey
)

// UserFromContext returns the user resolved by the session middleware.
func UserFromContext(ctx context.Context) (*auth.UserRecord, bool) {
	u, ok := ctx.Value(userKey).(*auth.UserRecord)
	return u, ok && u != nil
}

// RequestIDFromContext returns the id assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// requestID assigns a ULID to each request. A well-formed incoming id is
// kept so that ids survive proxies.
func requestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := ulid.ParseStrict(id); err != nil {
				id = ulid.Make().String()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDKey, id)
			ctx = context.WithValue(ctx, loggerKey, base.With("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestTimeout bounds each request with d. A handler that sees the
// deadline answers 504 itself; when it wrote nothing, requestTimeout does.
// Either way the status is written once.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				writeMessage(ww, http.StatusGatewayTimeout, msgTimeout)
			}
		})
	}
}

// accessLog logs each request and reports it to obs, which may be nil.
func accessLog(obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routePattern(r)

			loggerFrom(r.Context()).InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			)
			if obs != nil {
				obs.ObserveHTTPRequest(r.Method, route, status, elapsed)
			}
		})
	}
}

// routePattern is the matched chi route, so metrics do not carry raw paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// recoverer turns a handler panic into a logged 500.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := oops.Code("HTTP_PANIC").
				With("path", r.URL.Path).
				With("stack", string(debug.Stack())).
				Errorf("panic: %v", rec)
			errutil.LogErrorContext(r.Context(), loggerFrom(r.Context()), "handler panicked", err)
			writeMessage(w, http.StatusInternalServerError, msgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}

// requireSession rejects requests to protected paths that carry no valid
// session cookie. The resolved user is stored in the request context.
func requireSession(svc Service, paths *PathMatcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || !paths.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := svc.GetUserFromSession(r.Context(), sessionToken(r))
			if !ok {
				writeMessage(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}
