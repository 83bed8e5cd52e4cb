// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/memory"
	"github.com/holomush/authsvc/internal/httpapi"
	"github.com/holomush/authsvc/pkg/errutil"
)

func newSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1})
	require.NoError(t, err)
	sm, err := auth.NewSessionManager(memory.New(), hasher, auth.WithLogger(discardLogger()))
	require.NoError(t, err)
	return sm
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newRouter(t *testing.T, cfg httpapi.Config) http.Handler {
	t.Helper()
	if cfg.Service == nil {
		cfg.Service = newSessionManager(t)
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	h, err := httpapi.NewRouter(cfg)
	require.NoError(t, err)
	return h
}

type call struct {
	method  string
	path    string
	form    url.Values
	cookies []*http.Cookie
	header  http.Header
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if c.form != nil {
		body = strings.NewReader(c.form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpapi.CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", httpapi.CookieName)
	return nil
}

func form(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func TestNewRouter_Config(t *testing.T) {
	_, err := httpapi.NewRouter(httpapi.Config{})
	errutil.AssertErrorCode(t, err, "HTTP_INVALID_CONFIG")

	_, err = httpapi.NewRouter(httpapi.Config{Service: newSessionManager(t), ExcludedPaths: []string{"/a["}})
	errutil.AssertErrorCode(t, err, "HTTP_INVALID_PATH_PATTERN")
}

func TestIndex(t *testing.T) {
	h := newRouter(t, httpapi.Config{})

	rec := do(t, h, call{method: http.MethodGet, path: "/"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Bienvenue"}, decode(t, rec))
}

func TestRequestID(t *testing.T) {
	h := newRouter(t, httpapi.Config{})

	t.Run("assigned", func(t *testing.T) {
		rec := do(t, h, call{method: http.MethodGet, path: "/"})
		_, err := ulid.ParseStrict(rec.Header().Get(httpapi.RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("valid incoming id is kept", func(t *testing.T) {
		id := ulid.Make().String()
		rec := do(t, h, call{method: http.MethodGet, path: "/", header: http.Header{httpapi.RequestIDHeader: {id}}})
		assert.Equal(t, id, rec.Header().Get(httpapi.RequestIDHeader))
	})

	t.Run("malformed incoming id is replaced", func(t *testing.T) {
		rec := do(t, h, call{method: http.MethodGet, path: "/", header: http.Header{httpapi.RequestIDHeader: {"not-a-ulid"}}})
		got := rec.Header().Get(httpapi.RequestIDHeader)
		assert.NotEqual(t, "not-a-ulid", got)
		_, err := ulid.ParseStrict(got)
		assert.NoError(t, err)
	})
}

func TestSessionLifecycle(t *testing.T) {
	const email = "bob@bob.com"
	h := newRouter(t, httpapi.Config{Cookie: httpapi.CookieOptions{MaxAge: time.Hour}})

	rec := do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", email, "password", "mySuperPwd")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": email, "message": "user created"}, decode(t, rec))

	rec = do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", email, "password", "other")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email already registered", decode(t, rec)["message"])

	rec = do(t, h, call{method: http.MethodPost, path: "/sessions", form: form("email", email, "password", "wrong")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = do(t, h, call{method: http.MethodPost, path: "/sessions", form: form("email", email, "password", "mySuperPwd")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": email, "message": "logged in"}, decode(t, rec))
	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)

	rec = do(t, h, call{method: http.MethodGet, path: "/profile", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": email}, decode(t, rec))

	rec = do(t, h, call{method: http.MethodPost, path: "/reset_password", form: form("email", email)})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, email, body["email"])
	resetToken := body["reset_token"]
	require.NotEmpty(t, resetToken)

	update := form("email", email, "reset_token", resetToken, "new_password", "newPwd")
	rec = do(t, h, call{method: http.MethodPut, path: "/reset_password", form: update})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": email, "message": "Password updated"}, decode(t, rec))

	rec = do(t, h, call{method: http.MethodPut, path: "/reset_password", form: update})
	assert.Equal(t, http.StatusForbidden, rec.Code, "reset token is single use")

	rec = do(t, h, call{method: http.MethodPost, path: "/sessions", form: form("email", email, "password", "mySuperPwd")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "old password no longer valid")

	rec = do(t, h, call{method: http.MethodPost, path: "/sessions", form: form("email", email, "password", "newPwd")})
	require.Equal(t, http.StatusOK, rec.Code)
	newCookie := sessionCookie(t, rec)

	// Logging in again replaced the first session.
	rec = do(t, h, call{method: http.MethodGet, path: "/profile", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, call{method: http.MethodDelete, path: "/sessions", cookies: []*http.Cookie{newCookie}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)

	rec = do(t, h, call{method: http.MethodGet, path: "/profile", cookies: []*http.Cookie{newCookie}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, call{method: http.MethodDelete, path: "/sessions", cookies: []*http.Cookie{newCookie}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInputErrors(t *testing.T) {
	h := newRouter(t, httpapi.Config{})

	tests := []struct {
		name       string
		c          call
		wantStatus int
		wantMsg    string
	}{
		{"register without password", call{method: http.MethodPost, path: "/users", form: form("email", "a@b.com")}, http.StatusBadRequest, "missing required field: password"},
		{"register without anything", call{method: http.MethodPost, path: "/users", form: url.Values{}}, http.StatusBadRequest, "missing required field: email, password"},
		{"register with invalid email", call{method: http.MethodPost, path: "/users", form: form("email", "not an email", "password", "pw")}, http.StatusBadRequest, "invalid email"},
		{"login without password", call{method: http.MethodPost, path: "/sessions", form: form("email", "a@b.com")}, http.StatusUnauthorized, "missing required field: password"},
		{"login unknown user", call{method: http.MethodPost, path: "/sessions", form: form("email", "nobody@b.com", "password", "pw")}, http.StatusUnauthorized, "unauthorized"},
		{"reset token unknown email", call{method: http.MethodPost, path: "/reset_password", form: form("email", "nobody@b.com")}, http.StatusForbidden, "forbidden"},
		{"reset token without email", call{method: http.MethodPost, path: "/reset_password", form: url.Values{}}, http.StatusForbidden, "missing required field: email"},
		{"update with unknown token", call{method: http.MethodPut, path: "/reset_password", form: form("email", "a@b.com", "reset_token", "nope", "new_password", "pw")}, http.StatusForbidden, "forbidden"},
		{"update without new password", call{method: http.MethodPut, path: "/reset_password", form: form("email", "a@b.com", "reset_token", "nope")}, http.StatusForbidden, "missing required field: new_password"},
		{"profile without cookie", call{method: http.MethodGet, path: "/profile"}, http.StatusForbidden, "forbidden"},
		{"profile with unknown cookie", call{method: http.MethodGet, path: "/profile", cookies: []*http.Cookie{{Name: httpapi.CookieName, Value: "nope"}}}, http.StatusForbidden, "forbidden"},
		{"logout without cookie", call{method: http.MethodDelete, path: "/sessions"}, http.StatusForbidden, "forbidden"},
		{"method not allowed", call{method: http.MethodPatch, path: "/users"}, http.StatusMethodNotAllowed, "method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMsg, decode(t, rec)["message"])
		})
	}
}

func TestPasswordTooLongForBcrypt(t *testing.T) {
	hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, auth.Argon2Params{}, 4)
	require.NoError(t, err)
	sm, err := auth.NewSessionManager(memory.New(), hasher, auth.WithLogger(discardLogger()))
	require.NoError(t, err)
	h := newRouter(t, httpapi.Config{Service: sm})
	long := strings.Repeat("p", 73)

	rec := do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", "a@b.com", "password", long)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password is too long", decode(t, rec)["message"])

	rec = do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", "a@b.com", "password", "pw")})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, call{method: http.MethodPost, path: "/reset_password", form: form("email", "a@b.com")})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["reset_token"]

	rec = do(t, h, call{method: http.MethodPut, path: "/reset_password", form: form("email", "a@b.com", "reset_token", token, "new_password", long)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password is too long", decode(t, rec)["message"])
}

func TestMultipartForm(t *testing.T) {
	h := newRouter(t, httpapi.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("email", "multi@part.com"))
	require.NoError(t, mw.WriteField("password", "pw"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/users", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "multi@part.com", decode(t, rec)["email"])
}

func TestOversizedBody(t *testing.T) {
	h := newRouter(t, httpapi.Config{})

	big := form("email", "a@b.com", "password", strings.Repeat("x", 2<<20))
	rec := do(t, h, call{method: http.MethodPost, path: "/users", form: big})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed form body", decode(t, rec)["message"])
}

func TestSessionMiddleware(t *testing.T) {
	sm := newSessionManager(t)
	_, err := sm.RegisterUser(context.Background(), "mw@test.com", "pw")
	require.NoError(t, err)
	token, ok := sm.CreateSession(context.Background(), "mw@test.com")
	require.True(t, ok)
	cookie := &http.Cookie{Name: httpapi.CookieName, Value: token}

	t.Run("protected unknown path needs a session", func(t *testing.T) {
		h := newRouter(t, httpapi.Config{Service: sm})
		rec := do(t, h, call{method: http.MethodGet, path: "/admin"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, call{method: http.MethodGet, path: "/admin", cookies: []*http.Cookie{cookie}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty exclusions protect every path", func(t *testing.T) {
		h := newRouter(t, httpapi.Config{Service: sm, ExcludedPaths: []string{}})
		rec := do(t, h, call{method: http.MethodGet, path: "/"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, call{method: http.MethodGet, path: "/", cookies: []*http.Cookie{cookie}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("glob exclusions", func(t *testing.T) {
		h := newRouter(t, httpapi.Config{Service: sm, ExcludedPaths: []string{"/prof*"}})
		rec := do(t, h, call{method: http.MethodGet, path: "/profile"})
		// Excluded from the middleware, the handler still demands a session.
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, call{method: http.MethodGet, path: "/profile", cookies: []*http.Cookie{cookie}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	h := newRouter(t, httpapi.Config{CORSOrigins: []string{"https://app.example.com"}})

	preflight := http.Header{
		"Origin":                        {"https://app.example.com"},
		"Access-Control-Request-Method": {http.MethodPost},
	}
	rec := do(t, h, call{method: http.MethodOptions, path: "/sessions", header: preflight})
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = do(t, h, call{method: http.MethodGet, path: "/", header: http.Header{"Origin": {"https://evil.example.com"}}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	plain := newRouter(t, httpapi.Config{})
	rec = do(t, plain, call{method: http.MethodGet, path: "/", header: http.Header{"Origin": {"https://app.example.com"}}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// stubService fails or misbehaves on demand.
type stubService struct {
	httpapi.Service
	registerErr error
	resetErr    func(ctx context.Context) error
	panicOn     string
}

func (s *stubService) RegisterUser(_ context.Context, email, _ string) (*auth.UserRecord, error) {
	if s.panicOn == "register" {
		panic("boom")
	}
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &auth.UserRecord{ID: 1, Email: email}, nil
}

func (s *stubService) GetResetToken(ctx context.Context, _ string) (string, error) {
	return "", s.resetErr(ctx)
}

func (s *stubService) GetUserFromSession(context.Context, string) (*auth.UserRecord, bool) {
	return nil, false
}

func TestServerErrors(t *testing.T) {
	t.Run("store failure is a generic 500", func(t *testing.T) {
		svc := &stubService{registerErr: oops.Code("AUTH_REGISTER_FAILED").Errorf("connection refused to 10.0.0.1")}
		h := newRouter(t, httpapi.Config{Service: svc})

		rec := do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", "a@b.com", "password", "pw")})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", decode(t, rec)["message"])
		assert.NotContains(t, rec.Body.String(), "10.0.0.1")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		h := newRouter(t, httpapi.Config{Service: &stubService{panicOn: "register"}})

		rec := do(t, h, call{method: http.MethodPost, path: "/users", form: form("email", "a@b.com", "password", "pw")})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", decode(t, rec)["message"])
	})

	t.Run("request timeout", func(t *testing.T) {
		svc := &stubService{resetErr: func(ctx context.Context) error {
			<-ctx.Done()
			return oops.Code("AUTH_RESET_REQUEST_FAILED").Wrap(ctx.Err())
		}}
		h := newRouter(t, httpapi.Config{Service: svc, RequestTimeout: 20 * time.Millisecond})

		rec := do(t, h, call{method: http.MethodPost, path: "/reset_password", form: form("email", "a@b.com")})
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "request timed out", decode(t, rec)["message"])
	})
}

type observed struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (f *fakeObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observed{method, route, status})
}

func TestMetricsObserveRoutes(t *testing.T) {
	obs := &fakeObserver{}
	h := newRouter(t, httpapi.Config{Metrics: obs})

	do(t, h, call{method: http.MethodGet, path: "/"})
	do(t, h, call{method: http.MethodGet, path: "/profile"})
	do(t, h, call{method: http.MethodGet, path: "/users/42", cookies: nil})

	assert.Equal(t, []observed{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "unmatched", http.StatusForbidden},
		{http.MethodGet, "unmatched", http.StatusForbidden},
	}, obs.seen)
}
