// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authsvc/pkg/errutil"
)

// Operation names reported to a Recorder.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpCreateSession  = "create_session"
	OpResolveSession = "resolve_session"
	OpDestroySession = "destroy_session"
	OpResetRequest   = "reset_request"
	OpResetPassword  = "reset_password"
)

// Operation outcomes reported to a Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder receives one call per SessionManager operation.
type Recorder interface {
	RecordOperation(op, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string) {}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionTTL sets how long a session stays valid. Zero disables expiry.
func WithSessionTTL(d time.Duration) Option {
	return func(m *SessionManager) { m.sessionTTL = d }
}

// WithResetTTL sets how long a reset token stays valid. Zero disables expiry.
func WithResetTTL(d time.Duration) Option {
	return func(m *SessionManager) { m.resetTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTokenGenerator replaces NewToken.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(m *SessionManager) {
		if gen != nil {
			m.newToken = gen
		}
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) Option {
	return func(m *SessionManager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// SessionManager implements registration, login, sessions and password reset
// on top of a CredentialStore.
type SessionManager struct {
	store      CredentialStore
	hasher     PasswordHasher
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
	newToken   TokenGenerator
	sessionTTL time.Duration
	resetTTL   time.Duration

	// dummyHash is verified when a login names an unknown email so that
	// lookup misses take as long as password mismatches.
	dummyHash []byte
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(store CredentialStore, hasher PasswordHasher, opts ...Option) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	m := &SessionManager{
		store:      store,
		hasher:     hasher,
		logger:     slog.Default(),
		recorder:   noopRecorder{},
		now:        time.Now,
		newToken:   NewToken,
		sessionTTL: DefaultSessionTTL,
		resetTTL:   DefaultResetTTL,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sessionTTL < 0 || m.resetTTL < 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("session_ttl", m.sessionTTL.String()).
			With("reset_ttl", m.resetTTL.String()).
			Errorf("token lifetimes cannot be negative")
	}

	seed, err := NewToken()
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("operation", "generate dummy password").Wrap(err)
	}
	m.dummyHash, err = hasher.Hash(seed)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("operation", "hash dummy password").Wrap(err)
	}

	return m, nil
}

// RegisterUser creates a record for email with a freshly salted hash of
// password. Returns ErrAlreadyExists, without touching the store, if the
// email is registered.
func (m *SessionManager) RegisterUser(ctx context.Context, email, password string) (*UserRecord, error) {
	if err := ValidateEmail(email); err != nil {
		m.recorder.RecordOperation(OpRegister, OutcomeRejected)
		return nil, err
	}
	if password == "" {
		m.recorder.RecordOperation(OpRegister, OutcomeRejected)
		return nil, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	_, err := m.store.FindUserBy(ctx, ByEmail(email))
	switch {
	case err == nil:
		m.recorder.RecordOperation(OpRegister, OutcomeRejected)
		return nil, oops.Code("AUTH_USER_EXISTS").
			Wrapf(ErrAlreadyExists, "user %s already exists", email)
	case !errors.Is(err, ErrNotFound):
		return nil, m.fail(OpRegister, "find user by email", err)
	}

	hashed, err := m.hasher.Hash(password)
	if err != nil {
		if rejectedPassword(err) {
			m.recorder.RecordOperation(OpRegister, OutcomeRejected)
			return nil, err
		}
		return nil, m.fail(OpRegister, "hash password", err)
	}

	user, err := m.store.AddUser(ctx, email, hashed)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent registration.
			m.recorder.RecordOperation(OpRegister, OutcomeRejected)
			return nil, oops.Code("AUTH_USER_EXISTS").
				Wrapf(ErrAlreadyExists, "user %s already exists", email)
		}
		return nil, m.fail(OpRegister, "add user", err)
	}

	m.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	m.recorder.RecordOperation(OpRegister, OutcomeSuccess)
	return user, nil
}

// ValidLogin reports whether password matches the hash stored for email.
// Unknown emails and store failures both yield false.
func (m *SessionManager) ValidLogin(ctx context.Context, email, password string) bool {
	if email == "" || password == "" {
		m.recorder.RecordOperation(OpLogin, OutcomeRejected)
		return false
	}

	target := m.dummyHash
	user, err := m.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			_ = m.fail(OpLogin, "find user by email", err) //nolint:errcheck // absorbed into false
			return false
		}
	} else {
		target = user.HashedPassword
	}

	// Always verify, even for unknown users, to keep response time uniform.
	ok, err := m.hasher.Verify(password, target)
	if err != nil {
		if user != nil {
			errutil.LogError(m.logger, "stored password hash is unreadable", oops.With("user_id", user.ID).Wrap(err))
		}
		m.recorder.RecordOperation(OpLogin, OutcomeError)
		return false
	}
	if user == nil || !ok {
		m.recorder.RecordOperation(OpLogin, OutcomeRejected)
		return false
	}

	m.recorder.RecordOperation(OpLogin, OutcomeSuccess)
	return true
}

// CreateSession issues a new session token for email, replacing any
// existing one. Returns false if the email is unknown or the token could
// not be stored.
func (m *SessionManager) CreateSession(ctx context.Context, email string) (string, bool) {
	if email == "" {
		m.recorder.RecordOperation(OpCreateSession, OutcomeRejected)
		return "", false
	}

	user, err := m.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpCreateSession, OutcomeRejected)
		} else {
			_ = m.fail(OpCreateSession, "find user by email", err) //nolint:errcheck // absorbed into false
		}
		return "", false
	}

	token, err := m.newToken()
	if err != nil {
		_ = m.fail(OpCreateSession, "generate session token", err) //nolint:errcheck // absorbed into false
		return "", false
	}

	if err := m.store.UpdateUser(ctx, user.ID, SetSessionToken(token, m.expiry(m.sessionTTL))...); err != nil {
		_ = m.fail(OpCreateSession, "store session token", oops.With("user_id", user.ID).Wrap(err)) //nolint:errcheck // absorbed into false
		return "", false
	}

	m.logger.InfoContext(ctx, "session created", "user_id", user.ID)
	m.recorder.RecordOperation(OpCreateSession, OutcomeSuccess)
	return token, true
}

// GetUserFromSession returns the user holding token. Returns false for an
// empty, unknown, or expired token; an expired token is cleared.
func (m *SessionManager) GetUserFromSession(ctx context.Context, token string) (*UserRecord, bool) {
	if token == "" {
		m.recorder.RecordOperation(OpResolveSession, OutcomeRejected)
		return nil, false
	}

	user, err := m.store.FindUserBy(ctx, BySessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpResolveSession, OutcomeRejected)
		} else {
			_ = m.fail(OpResolveSession, "find user by session token", err) //nolint:errcheck // absorbed into false
		}
		return nil, false
	}

	if user.SessionExpiredAt(m.now()) {
		m.logger.DebugContext(ctx, "session expired", "user_id", user.ID)
		if err := m.store.UpdateUser(ctx, user.ID, ClearSessionToken()...); err != nil && !errors.Is(err, ErrNotFound) {
			errutil.LogError(m.logger, "failed to clear expired session", oops.With("user_id", user.ID).Wrap(err))
		}
		m.recorder.RecordOperation(OpResolveSession, OutcomeRejected)
		return nil, false
	}

	m.recorder.RecordOperation(OpResolveSession, OutcomeSuccess)
	return user, true
}

// DestroySession clears the session of the user with userID. Unknown users
// and users without a session are a no-op.
func (m *SessionManager) DestroySession(ctx context.Context, userID int64) error {
	user, err := m.store.FindUserBy(ctx, ByID(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpDestroySession, OutcomeSuccess)
			return nil
		}
		return m.fail(OpDestroySession, "find user by id", err)
	}

	if user.SessionToken != nil || user.SessionExpiresAt != nil {
		err := m.store.UpdateUser(ctx, user.ID, ClearSessionToken()...)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return m.fail(OpDestroySession, "clear session token", oops.With("user_id", user.ID).Wrap(err))
		}
		m.logger.InfoContext(ctx, "session destroyed", "user_id", user.ID)
	}

	m.recorder.RecordOperation(OpDestroySession, OutcomeSuccess)
	return nil
}

// GetResetToken issues a reset token for email, replacing any pending one.
// Returns ErrNotFound if the email is unknown.
func (m *SessionManager) GetResetToken(ctx context.Context, email string) (string, error) {
	if email == "" {
		m.recorder.RecordOperation(OpResetRequest, OutcomeRejected)
		return "", oops.Code("USER_NOT_FOUND").Wrapf(ErrNotFound, "no user with that email")
	}

	user, err := m.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpResetRequest, OutcomeRejected)
			return "", oops.Code("USER_NOT_FOUND").Wrapf(ErrNotFound, "no user with that email")
		}
		return "", m.fail(OpResetRequest, "find user by email", err)
	}

	token, err := m.newToken()
	if err != nil {
		return "", m.fail(OpResetRequest, "generate reset token", err)
	}

	if err := m.store.UpdateUser(ctx, user.ID, SetResetToken(token, m.expiry(m.resetTTL))...); err != nil {
		return "", m.fail(OpResetRequest, "store reset token", oops.With("user_id", user.ID).Wrap(err))
	}

	m.logger.InfoContext(ctx, "reset token issued", "user_id", user.ID)
	m.recorder.RecordOperation(OpResetRequest, OutcomeSuccess)
	return token, nil
}

// UpdatePassword redeems resetToken: the password hash is replaced and the
// token cleared in one update. Returns ErrNotFound for an empty, unknown,
// consumed, or expired token.
func (m *SessionManager) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
		return oops.Code("RESET_TOKEN_INVALID").Wrapf(ErrNotFound, "reset token not found")
	}
	if newPassword == "" {
		m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
		return oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	user, err := m.store.FindUserBy(ctx, ByResetToken(resetToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
			return oops.Code("RESET_TOKEN_INVALID").Wrapf(ErrNotFound, "reset token not found")
		}
		return m.fail(OpResetPassword, "find user by reset token", err)
	}

	if user.ResetExpiredAt(m.now()) {
		if err := m.store.UpdateUser(ctx, user.ID, ClearResetToken()...); err != nil && !errors.Is(err, ErrNotFound) {
			errutil.LogError(m.logger, "failed to clear expired reset token", oops.With("user_id", user.ID).Wrap(err))
		}
		m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
		return oops.Code("RESET_TOKEN_EXPIRED").
			With("user_id", user.ID).
			Wrapf(ErrNotFound, "reset token has expired")
	}

	hashed, err := m.hasher.Hash(newPassword)
	if err != nil {
		if rejectedPassword(err) {
			// The token stays valid so the user can retry.
			m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
			return err
		}
		return m.fail(OpResetPassword, "hash password", err)
	}

	updates := append(ClearResetToken(), SetHashedPassword(hashed))
	if err := m.store.UpdateUser(ctx, user.ID, updates...); err != nil {
		if errors.Is(err, ErrNotFound) {
			m.recorder.RecordOperation(OpResetPassword, OutcomeRejected)
			return oops.Code("RESET_TOKEN_INVALID").Wrapf(ErrNotFound, "reset token not found")
		}
		return m.fail(OpResetPassword, "store password", oops.With("user_id", user.ID).Wrap(err))
	}

	m.logger.InfoContext(ctx, "password updated", "user_id", user.ID)
	m.recorder.RecordOperation(OpResetPassword, OutcomeSuccess)
	return nil
}

// expiry returns now+ttl, or nil when ttl disables expiry.
func (m *SessionManager) expiry(ttl time.Duration) *time.Time {
	if ttl == 0 {
		return nil
	}
	t := m.now().Add(ttl)
	return &t
}

// fail logs an unexpected error, records it, and wraps it with the
// operation. Invalid field and criteria errors are caller bugs and are
// logged the same way.
func (m *SessionManager) fail(op, operation string, err error) error {
	wrapped := oops.Code("AUTH_"+opCode(op)+"_FAILED").
		With("operation", operation).
		Wrap(err)
	errutil.LogError(m.logger, op+" failed", wrapped)
	m.recorder.RecordOperation(op, OutcomeError)
	return wrapped
}

// rejectedPassword reports whether a hasher refused the password itself
// rather than failing.
func rejectedPassword(err error) bool {
	return errors.Is(err, ErrEmptyPassword) || errors.Is(err, ErrPasswordTooLong)
}

func opCode(op string) string {
	switch op {
	case OpRegister:
		return "REGISTER"
	case OpLogin:
		return "LOGIN"
	case OpCreateSession:
		return "SESSION_CREATE"
	case OpResolveSession:
		return "SESSION_RESOLVE"
	case OpDestroySession:
		return "SESSION_DESTROY"
	case OpResetRequest:
		return "RESET_REQUEST"
	case OpResetPassword:
		return "RESET_PASSWORD"
	default:
		return "OPERATION"
	}
}
