// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Field identifies a UserRecord attribute in lookups and updates.
type Field int

// Known UserRecord fields. The zero value is not a valid field.
const (
	FieldID Field = iota + 1
	FieldEmail
	FieldHashedPassword
	FieldSessionToken
	FieldSessionExpiresAt
	FieldResetToken
	FieldResetExpiresAt
)

var fieldNames = map[Field]string{
	FieldID:               "id",
	FieldEmail:            "email",
	FieldHashedPassword:   "hashed_password",
	FieldSessionToken:     "session_token",
	FieldSessionExpiresAt: "session_expires_at",
	FieldResetToken:       "reset_token",
	FieldResetExpiresAt:   "reset_expires_at",
}

// String returns the attribute name of the field, which is also its column
// name in SQL-backed stores.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	_, ok := fieldNames[f]
	return ok
}

// Queryable reports whether f may be used in a lookup.
func (f Field) Queryable() bool {
	switch f {
	case FieldID, FieldEmail, FieldHashedPassword, FieldSessionToken, FieldResetToken:
		return true
	default:
		return false
	}
}

// Updatable reports whether f may be changed after creation.
func (f Field) Updatable() bool {
	return f.Valid() && f != FieldID
}

// nullable reports whether f may be cleared.
func (f Field) nullable() bool {
	switch f {
	case FieldSessionToken, FieldSessionExpiresAt, FieldResetToken, FieldResetExpiresAt:
		return true
	default:
		return false
	}
}

// ParseField maps an attribute name to its Field.
func ParseField(name string) (Field, error) {
	for f, n := range fieldNames {
		if n == name {
			return f, nil
		}
	}
	return 0, oops.Code("AUTH_UNKNOWN_FIELD").
		With("field", name).
		Wrapf(ErrInvalidField, "unknown field %q", name)
}

// Criterion is an exact-match constraint on one field.
type Criterion struct {
	Field Field
	Value any
}

// Where builds a criterion for an arbitrary field. Prefer the typed
// constructors; Where exists for callers that resolve fields at runtime.
func Where(field Field, value any) Criterion {
	return Criterion{Field: field, Value: value}
}

// ByID matches the record with the given id.
func ByID(id int64) Criterion { return Criterion{Field: FieldID, Value: id} }

// ByEmail matches the record with the given email.
func ByEmail(email string) Criterion { return Criterion{Field: FieldEmail, Value: email} }

// ByHashedPassword matches the record with the given password hash.
func ByHashedPassword(hash []byte) Criterion {
	return Criterion{Field: FieldHashedPassword, Value: hash}
}

// BySessionToken matches the record holding the given session token.
func BySessionToken(token string) Criterion {
	return Criterion{Field: FieldSessionToken, Value: token}
}

// ByResetToken matches the record holding the given reset token.
func ByResetToken(token string) Criterion {
	return Criterion{Field: FieldResetToken, Value: token}
}

// ValidateCriteria checks that criteria is non-empty and that every criterion
// names a queryable field with a value of the field's type.
func ValidateCriteria(criteria []Criterion) error {
	if len(criteria) == 0 {
		return oops.Code("STORE_INVALID_CRITERIA").Wrapf(ErrInvalidCriteria, "at least one criterion is required")
	}
	for _, c := range criteria {
		if !c.Field.Queryable() {
			return oops.Code("STORE_INVALID_CRITERIA").
				With("field", c.Field.String()).
				Wrapf(ErrInvalidCriteria, "field %s is not queryable", c.Field)
		}
		if !valueMatches(c.Field, c.Value, false) {
			return oops.Code("STORE_INVALID_CRITERIA").
				With("field", c.Field.String()).
				Wrapf(ErrInvalidCriteria, "value of type %T does not match field %s", c.Value, c.Field)
		}
	}
	return nil
}

// Update sets one field to a new value. A nil Value clears a nullable field.
type Update struct {
	Field Field
	Value any
}

// Set builds an update for an arbitrary field.
func Set(field Field, value any) Update {
	return Update{Field: field, Value: value}
}

// SetEmail changes the record's email.
func SetEmail(email string) Update { return Update{Field: FieldEmail, Value: email} }

// SetHashedPassword replaces the stored password hash.
func SetHashedPassword(hash []byte) Update {
	return Update{Field: FieldHashedPassword, Value: hash}
}

// SetSessionToken stores a session token and its expiry. A nil expiresAt
// means the session does not expire.
func SetSessionToken(token string, expiresAt *time.Time) []Update {
	return []Update{
		{Field: FieldSessionToken, Value: token},
		{Field: FieldSessionExpiresAt, Value: timeValue(expiresAt)},
	}
}

// ClearSessionToken removes the session token and its expiry.
func ClearSessionToken() []Update {
	return []Update{
		{Field: FieldSessionToken, Value: nil},
		{Field: FieldSessionExpiresAt, Value: nil},
	}
}

// SetResetToken stores a reset token and its expiry.
func SetResetToken(token string, expiresAt *time.Time) []Update {
	return []Update{
		{Field: FieldResetToken, Value: token},
		{Field: FieldResetExpiresAt, Value: timeValue(expiresAt)},
	}
}

// ClearResetToken removes the reset token and its expiry.
func ClearResetToken() []Update {
	return []Update{
		{Field: FieldResetToken, Value: nil},
		{Field: FieldResetExpiresAt, Value: nil},
	}
}

// ValidateUpdates checks that updates is non-empty, names each updatable
// field at most once, and carries values of the right type.
func ValidateUpdates(updates []Update) error {
	if len(updates) == 0 {
		return oops.Code("STORE_INVALID_FIELD").Wrapf(ErrInvalidField, "at least one update is required")
	}
	seen := make(map[Field]struct{}, len(updates))
	for _, u := range updates {
		if !u.Field.Updatable() {
			return oops.Code("STORE_INVALID_FIELD").
				With("field", u.Field.String()).
				Wrapf(ErrInvalidField, "field %s is not updatable", u.Field)
		}
		if _, dup := seen[u.Field]; dup {
			return oops.Code("STORE_INVALID_FIELD").
				With("field", u.Field.String()).
				Wrapf(ErrInvalidField, "field %s updated more than once", u.Field)
		}
		seen[u.Field] = struct{}{}
		if !valueMatches(u.Field, u.Value, u.Field.nullable()) {
			return oops.Code("STORE_INVALID_FIELD").
				With("field", u.Field.String()).
				Wrapf(ErrInvalidField, "value of type %T does not match field %s", u.Value, u.Field)
		}
	}
	return nil
}

// ApplyUpdates applies validated updates to rec. Store implementations call
// it on a private copy before committing.
func ApplyUpdates(rec *UserRecord, updates []Update) {
	for _, u := range updates {
		switch u.Field {
		case FieldEmail:
			rec.Email = u.Value.(string)
		case FieldHashedPassword:
			rec.HashedPassword = append([]byte(nil), u.Value.([]byte)...)
		case FieldSessionToken:
			rec.SessionToken = stringPtr(u.Value)
		case FieldSessionExpiresAt:
			rec.SessionExpiresAt = timePtr(u.Value)
		case FieldResetToken:
			rec.ResetToken = stringPtr(u.Value)
		case FieldResetExpiresAt:
			rec.ResetExpiresAt = timePtr(u.Value)
		}
	}
}

// valueMatches reports whether v has the Go type stored in field f.
func valueMatches(f Field, v any, allowNil bool) bool {
	if v == nil {
		return allowNil
	}
	switch f {
	case FieldID:
		_, ok := v.(int64)
		return ok
	case FieldEmail, FieldSessionToken, FieldResetToken:
		s, ok := v.(string)
		// Empty strings are never stored; clearing is done with nil.
		return ok && s != ""
	case FieldHashedPassword:
		b, ok := v.([]byte)
		return ok && len(b) > 0
	case FieldSessionExpiresAt, FieldResetExpiresAt:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// timeValue converts an optional time into an Update value.
func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func stringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func timePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}
