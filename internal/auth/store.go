// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// CredentialStore owns UserRecords. Every operation persists immediately and
// returns copies; callers never share memory with stored state.
//
// Implementations must keep email, session token, and reset token unique
// across records, and must make the email uniqueness check and the insert
// in AddUser a single atomic step.
type CredentialStore interface {
	// AddUser inserts a new record with a store-assigned id.
	// Returns ErrDuplicateEmail, leaving the store unchanged, if the email
	// is already taken.
	AddUser(ctx context.Context, email string, hashedPassword []byte) (*UserRecord, error)

	// FindUserBy returns the record matching every criterion.
	// Returns ErrInvalidCriteria for a bad criterion and ErrNotFound when
	// nothing matches.
	FindUserBy(ctx context.Context, criteria ...Criterion) (*UserRecord, error)

	// UpdateUser applies all updates to the record with the given id, or
	// none of them. Returns ErrInvalidField for a bad update, ErrNotFound
	// for an unknown id, and ErrDuplicateEmail if an email update collides.
	UpdateUser(ctx context.Context, id int64, updates ...Update) error
}
