// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Sentinel errors. Coded errors returned by this package and by store
// implementations wrap one of these, so callers match with errors.Is.
var (
	// ErrNotFound is returned when no record matches a lookup key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by a CredentialStore when a record with
	// the same email already exists.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrAlreadyExists is returned by SessionManager.RegisterUser when the
	// email is already registered.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidField is returned when an update names a field that is
	// unknown, immutable, or given a value of the wrong type.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidCriteria is returned when a lookup names a field that is
	// unknown or not queryable, or is given a value of the wrong type.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when a password exceeds what the
	// configured hasher accepts.
	ErrPasswordTooLong = errors.New("password is too long")
)
