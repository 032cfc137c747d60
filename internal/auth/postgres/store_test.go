// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

var userRowColumns = []string{
	"id", "email", "hashed_password", "session_id", "reset_token", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*UserStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return NewUserStore(mock), mock
}

func TestUserStore_AddUser(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts and returns the record", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "bob@example.com", "digest", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		user, err := store.AddUser(ctx, "bob@example.com", "digest")
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", user.Email)
		assert.Equal(t, "digest", user.HashedPassword)
		assert.NotEmpty(t, user.ID)

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("maps unique violation to ErrDuplicateEmail", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "bob@example.com", "digest", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		_, err := store.AddUser(ctx, "bob@example.com", "digest")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "USER_DUPLICATE_EMAIL")

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("other database errors pass through", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "bob@example.com", "digest", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		_, err := store.AddUser(ctx, "bob@example.com", "digest")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserStore_FindUserBy(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("finds by email", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()

		rows := pgxmock.NewRows(userRowColumns).
			AddRow(id.String(), "bob@example.com", "digest", nil, nil, now, now)
		mock.ExpectQuery(`FROM users WHERE email =`).
			WithArgs("bob@example.com").
			WillReturnRows(rows)

		user, err := store.FindUserBy(ctx, auth.ByEmail("bob@example.com"))
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "bob@example.com", user.Email)
		assert.Nil(t, user.SessionID)

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("finds by session id with populated nullables", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()
		sessionID := "session-123"
		resetToken := "reset-456"

		rows := pgxmock.NewRows(userRowColumns).
			AddRow(id.String(), "bob@example.com", "digest", &sessionID, &resetToken, now, now)
		mock.ExpectQuery(`FROM users WHERE session_id =`).
			WithArgs("session-123").
			WillReturnRows(rows)

		user, err := store.FindUserBy(ctx, auth.BySessionID("session-123"))
		require.NoError(t, err)
		require.NotNil(t, user.SessionID)
		assert.Equal(t, "session-123", *user.SessionID)
		require.NotNil(t, user.ResetToken)
		assert.Equal(t, "reset-456", *user.ResetToken)
	})

	t.Run("conjunction of multiple fields", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()
		email := "bob@example.com"
		sessionID := "session-123"

		rows := pgxmock.NewRows(userRowColumns).
			AddRow(id.String(), email, "digest", &sessionID, nil, now, now)
		mock.ExpectQuery(`FROM users WHERE email =`).
			WithArgs(email, sessionID).
			WillReturnRows(rows)

		user, err := store.FindUserBy(ctx, auth.Query{Email: &email, SessionID: &sessionID})
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
	})

	t.Run("no rows maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM users WHERE email =`).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows(userRowColumns))

		_, err := store.FindUserBy(ctx, auth.ByEmail("nobody@example.com"))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("empty query is rejected without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)

		_, err := store.FindUserBy(ctx, auth.Query{})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidQuery)

		assert.NoError(t, mock.ExpectationsWereMet(), "no queries expected")
	})
}

func TestUserStore_UpdateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("sets a field", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()
		sessionID := "session-123"

		mock.ExpectExec(`UPDATE users SET session_id =`).
			WithArgs(id.String(), &sessionID, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.UpdateUser(ctx, id, map[auth.Field]*string{
			auth.FieldSessionID: &sessionID,
		})
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("clears a field with nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()

		mock.ExpectExec(`UPDATE users SET session_id =`).
			WithArgs(id.String(), (*string)(nil), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.UpdateUser(ctx, id, map[auth.Field]*string{
			auth.FieldSessionID: nil,
		})
		require.NoError(t, err)
	})

	t.Run("zero rows affected maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()
		v := "x"

		mock.ExpectExec(`UPDATE users SET reset_token =`).
			WithArgs(id.String(), &v, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.UpdateUser(ctx, id, map[auth.Field]*string{
			auth.FieldResetToken: &v,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("invalid field is rejected without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		v := "x"

		err := store.UpdateUser(ctx, ulid.Make(), map[auth.Field]*string{
			auth.Field("email"): &v,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidField)

		assert.NoError(t, mock.ExpectationsWereMet(), "no queries expected")
	})

	t.Run("nil hashed password is rejected without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)

		err := store.UpdateUser(ctx, ulid.Make(), map[auth.Field]*string{
			auth.FieldHashedPassword: nil,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidField)
		errutil.AssertErrorCode(t, err, "USER_INVALID_FIELD")

		assert.NoError(t, mock.ExpectationsWereMet(), "no queries expected")
	})
}

func TestUserStore_RedeemResetToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("swaps the password and clears the token", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := ulid.Make()

		rows := pgxmock.NewRows(userRowColumns).
			AddRow(id.String(), "bob@example.com", "new digest", nil, nil, now, now)
		mock.ExpectQuery(`UPDATE users`).
			WithArgs("reset-token", "new digest", pgxmock.AnyArg()).
			WillReturnRows(rows)

		user, err := store.RedeemResetToken(ctx, "reset-token", "new digest")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "new digest", user.HashedPassword)
		assert.Nil(t, user.ResetToken)

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("unmatched token maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`UPDATE users`).
			WithArgs("spent-token", "digest", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(userRowColumns))

		_, err := store.RedeemResetToken(ctx, "spent-token", "digest")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("empty token is rejected without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)

		_, err := store.RedeemResetToken(ctx, "", "digest")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet(), "no queries expected")
	})
}
