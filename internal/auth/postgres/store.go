// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/authsvc/internal/auth"
)

// Unique constraint names from the users migration.
const (
	emailConstraint        = "users_email_key"
	sessionTokenConstraint = "users_session_token_key"
	resetTokenConstraint   = "users_reset_token_key"
)

const selectColumns = `id, email, hashed_password, session_token, session_expires_at,
	reset_token, reset_expires_at, created_at, updated_at`

// Pool is the subset of *pgxpool.Pool used by Store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements auth.CredentialStore using PostgreSQL. Each operation is
// a single statement; uniqueness is enforced by table constraints.
type Store struct {
	pool Pool
}

// NewStore creates a Store.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// AddUser inserts a new user.
func (s *Store) AddUser(ctx context.Context, email string, hashedPassword []byte) (*auth.UserRecord, error) {
	if err := auth.ValidateUpdates([]auth.Update{auth.SetEmail(email), auth.SetHashedPassword(hashedPassword)}); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "validate user").Wrap(err)
	}

	rec := &auth.UserRecord{
		Email:          email,
		HashedPassword: append([]byte(nil), hashedPassword...),
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, email, hashedPassword).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == emailConstraint {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return rec, nil
}

// FindUserBy returns the first user matching all criteria.
func (s *Store) FindUserBy(ctx context.Context, criteria ...auth.Criterion) (*auth.UserRecord, error) {
	if err := auth.ValidateCriteria(criteria); err != nil {
		return nil, err
	}

	where := make([]string, 0, len(criteria))
	args := make([]any, 0, len(criteria))
	for i, c := range criteria {
		// Column names come from the closed Field set, never from input.
		where = append(where, fmt.Sprintf("%s = $%d", c.Field, i+1))
		args = append(args, c.Value)
	}

	row := s.pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM users WHERE "+strings.Join(where, " AND ")+" LIMIT 1",
		args...)

	rec, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("fields", fieldNames(criteria)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With("fields", fieldNames(criteria)).
			Wrap(err)
	}
	return rec, nil
}

// UpdateUser applies updates to the user with id in a single statement.
func (s *Store) UpdateUser(ctx context.Context, id int64, updates ...auth.Update) error {
	if err := auth.ValidateUpdates(updates); err != nil {
		return err
	}

	set := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for i, u := range updates {
		set = append(set, fmt.Sprintf("%s = $%d", u.Field, i+1))
		args = append(args, u.Value)
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)

	result, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)),
		args...)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == emailConstraint {
				return oops.Code("USER_DUPLICATE_EMAIL").With("id", id).Wrap(auth.ErrDuplicateEmail)
			}
			return oops.Code("USER_DUPLICATE_TOKEN").
				With("id", id).
				With("constraint", constraint).
				Wrap(err)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a UserRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		rec          auth.UserRecord
		sessionToken *string
		sessionExp   *time.Time
		resetToken   *string
		resetExp     *time.Time
	)
	err := row.Scan(
		&rec.ID,
		&rec.Email,
		&rec.HashedPassword,
		&sessionToken,
		&sessionExp,
		&resetToken,
		&resetExp,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}
	rec.SessionToken = sessionToken
	rec.SessionExpiresAt = sessionExp
	rec.ResetToken = resetToken
	rec.ResetExpiresAt = resetExp
	return &rec, nil
}

// uniqueViolation reports whether err is a unique constraint violation and
// which constraint it hit.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func fieldNames(criteria []auth.Criterion) []string {
	names := make([]string, len(criteria))
	for i, c := range criteria {
		names[i] = c.Field.String()
	}
	return names
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
