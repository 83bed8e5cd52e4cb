// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"net/mail"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength bounds the length of a stored email address.
const MaxEmailLength = 254

// UserRecord is a registered user as held by a CredentialStore.
type UserRecord struct {
	ID               int64
	Email            string
	HashedPassword   []byte
	SessionToken     *string
	SessionExpiresAt *time.Time
	ResetToken       *string
	ResetExpiresAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasSession reports whether the record carries a session token.
func (u *UserRecord) HasSession() bool {
	return u.SessionToken != nil && *u.SessionToken != ""
}

// SessionExpiredAt reports whether the session would be expired at t.
// Sessions without an expiry never expire.
func (u *UserRecord) SessionExpiredAt(t time.Time) bool {
	return u.SessionExpiresAt != nil && !t.Before(*u.SessionExpiresAt)
}

// ResetExpiredAt reports whether the pending reset token would be expired at t.
func (u *UserRecord) ResetExpiredAt(t time.Time) bool {
	return u.ResetExpiresAt != nil && !t.Before(*u.ResetExpiresAt)
}

// Clone returns a deep copy of the record.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	if u.HashedPassword != nil {
		c.HashedPassword = append([]byte(nil), u.HashedPassword...)
	}
	c.SessionToken = cloneString(u.SessionToken)
	c.SessionExpiresAt = cloneTime(u.SessionExpiresAt)
	c.ResetToken = cloneString(u.ResetToken)
	c.ResetExpiresAt = cloneTime(u.ResetExpiresAt)
	return &c
}

// LogValue implements slog.LogValuer. The password hash and both tokens are
// never included.
func (u *UserRecord) LogValue() slog.Value {
	if u == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Int64("id", u.ID),
		slog.Bool("has_session", u.HasSession()),
		slog.Bool("reset_pending", u.ResetToken != nil),
	)
}

// ValidateEmail checks that email is a bare, well-formed address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidEmail, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidEmail, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidEmail, "email is not a valid address")
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
