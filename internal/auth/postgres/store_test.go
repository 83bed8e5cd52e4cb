// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/postgres"
	"github.com/holomush/authsvc/pkg/errutil"
)

var userColumns = []string{
	"id", "email", "hashed_password", "session_token", "session_expires_at",
	"reset_token", "reset_expires_at", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestStore_AddUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		check     func(t *testing.T, rec *auth.UserRecord, err error)
	}{
		{
			name: "returns assigned id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users \(email, hashed_password\)`).
					WithArgs("a@x.com", []byte("hash")).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
						AddRow(int64(7), now, now))
			},
			check: func(t *testing.T, rec *auth.UserRecord, err error) {
				require.NoError(t, err)
				assert.Equal(t, int64(7), rec.ID)
				assert.Equal(t, "a@x.com", rec.Email)
				assert.Equal(t, []byte("hash"), rec.HashedPassword)
				assert.Equal(t, now, rec.CreatedAt)
				assert.Nil(t, rec.SessionToken)
			},
		},
		{
			name: "email unique violation maps to duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs("a@x.com", []byte("hash")).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})
			},
			check: func(t *testing.T, _ *auth.UserRecord, err error) {
				errutil.AssertCodedError(t, err, auth.ErrDuplicateEmail, "USER_DUPLICATE_EMAIL")
			},
		},
		{
			name: "other errors are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs("a@x.com", []byte("hash")).
					WillReturnError(errors.New("connection refused"))
			},
			check: func(t *testing.T, _ *auth.UserRecord, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
				assert.Contains(t, err.Error(), "connection refused")
				errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			rec, err := postgres.NewStore(mock).AddUser(ctx, "a@x.com", []byte("hash"))
			tt.check(t, rec, err)
		})
	}

	t.Run("invalid input never reaches the database", func(t *testing.T) {
		mock := newMock(t)
		_, err := postgres.NewStore(mock).AddUser(ctx, "", []byte("hash"))
		assert.ErrorIs(t, err, auth.ErrInvalidField)
	})
}

func TestStore_FindUserBy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	sess := "sess-token"

	t.Run("builds where clause from fields", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1 AND session_token = $2 LIMIT 1`)).
			WithArgs("a@x.com", sess).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(int64(3), "a@x.com", []byte("hash"), &sess, &exp, (*string)(nil), (*time.Time)(nil), now, now))

		rec, err := postgres.NewStore(mock).FindUserBy(ctx, auth.ByEmail("a@x.com"), auth.BySessionToken(sess))
		require.NoError(t, err)
		assert.Equal(t, int64(3), rec.ID)
		require.NotNil(t, rec.SessionToken)
		assert.Equal(t, sess, *rec.SessionToken)
		require.NotNil(t, rec.SessionExpiresAt)
		assert.Equal(t, exp, *rec.SessionExpiresAt)
		assert.Nil(t, rec.ResetToken)
		assert.Nil(t, rec.ResetExpiresAt)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE reset_token = $1 LIMIT 1`)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(userColumns))

		_, err := postgres.NewStore(mock).FindUserBy(ctx, auth.ByResetToken("missing"))
		errutil.AssertCodedError(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "fields", []string{"reset_token"})
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE id`).
			WithArgs(int64(1)).
			WillReturnError(errors.New("timeout"))

		_, err := postgres.NewStore(mock).FindUserBy(ctx, auth.ByID(1))
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("invalid criteria never reach the database", func(t *testing.T) {
		mock := newMock(t)
		store := postgres.NewStore(mock)

		_, err := store.FindUserBy(ctx)
		assert.ErrorIs(t, err, auth.ErrInvalidCriteria)
		_, err = store.FindUserBy(ctx, auth.Where(auth.FieldSessionExpiresAt, now))
		assert.ErrorIs(t, err, auth.ErrInvalidCriteria)
	})
}

func TestStore_UpdateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("single statement for all fields", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE users SET reset_token = $1, reset_expires_at = $2, hashed_password = $3, updated_at = now() WHERE id = $4`)).
			WithArgs(nil, nil, []byte("new"), int64(9)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := postgres.NewStore(mock).UpdateUser(ctx, 9,
			append(auth.ClearResetToken(), auth.SetHashedPassword([]byte("new")))...)
		require.NoError(t, err)
	})

	t.Run("sets session token with expiry", func(t *testing.T) {
		exp := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
		mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET session_token = $1, session_expires_at = $2`)).
			WithArgs("tok", exp, int64(2)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewStore(mock).UpdateUser(ctx, 2, auth.SetSessionToken("tok", &exp)...))
	})

	t.Run("no rows affected is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(nil, nil, int64(404)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewStore(mock).UpdateUser(ctx, 404, auth.ClearSessionToken()...)
		errutil.AssertCodedError(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "id", int64(404))
	})

	t.Run("email collision maps to duplicate email", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET email`).
			WithArgs("b@x.com", int64(1)).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

		err := postgres.NewStore(mock).UpdateUser(ctx, 1, auth.SetEmail("b@x.com"))
		errutil.AssertCodedError(t, err, auth.ErrDuplicateEmail, "USER_DUPLICATE_EMAIL")
	})

	t.Run("token collision is reported", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET session_token`).
			WithArgs("dup", nil, int64(1)).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_session_token_key"})

		err := postgres.NewStore(mock).UpdateUser(ctx, 1, auth.SetSessionToken("dup", nil)...)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_DUPLICATE_TOKEN")
		errutil.AssertErrorContext(t, err, "constraint", "users_session_token_key")
	})

	t.Run("invalid updates never reach the database", func(t *testing.T) {
		mock := newMock(t)
		store := postgres.NewStore(mock)

		assert.ErrorIs(t, store.UpdateUser(ctx, 1), auth.ErrInvalidField)
		assert.ErrorIs(t, store.UpdateUser(ctx, 1, auth.Set(auth.FieldID, int64(2))), auth.ErrInvalidField)
	})
}
