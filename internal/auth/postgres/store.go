// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements the credential store on PostgreSQL.
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
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the store needs. pgxmock
// satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.UserStore using PostgreSQL. Email
// uniqueness is a unique index; reset-token redemption is a single
// conditional UPDATE. Both close the races the engine's check-then-act
// sequences would otherwise have.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, email, hashed_password, session_id, reset_token, created_at, updated_at`

// AddUser inserts a new user record.
func (s *UserStore) AddUser(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	now := time.Now()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID.String(), user.Email, user.HashedPassword, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user, nil
}

// FindUserBy returns the first user matching the query, which becomes
// an exact-match WHERE conjunction.
func (s *UserStore) FindUserBy(ctx context.Context, q auth.Query) (*auth.User, error) {
	where, args := buildWhere(q)
	if where == "" {
		return nil, oops.Code("USER_INVALID_QUERY").Wrap(auth.ErrInvalidQuery)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, args...)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			Wrap(err)
	}
	return user, nil
}

// UpdateUser applies a partial update; nil values clear nullable columns.
func (s *UserStore) UpdateUser(ctx context.Context, id ulid.ULID, fields map[auth.Field]*string) error {
	set := make([]string, 0, len(fields)+1)
	args := []any{id.String()}

	for f, v := range fields {
		if !f.Valid() {
			return oops.Code("USER_INVALID_FIELD").
				With("field", string(f)).
				Wrap(auth.ErrInvalidField)
		}
		// hashed_password is NOT NULL; reject the clear before it can
		// become a constraint violation.
		if f == auth.FieldHashedPassword && v == nil {
			return oops.Code("USER_INVALID_FIELD").
				With("field", string(f)).
				Wrap(auth.ErrInvalidField)
		}
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", string(f), len(args)))
	}
	args = append(args, time.Now())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))

	result, err := s.pool.Exec(ctx,
		`UPDATE users SET `+strings.Join(set, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RedeemResetToken sets the password hash and clears the reset token in
// one conditional UPDATE. Concurrent redemptions of the same token
// serialize on the row lock: exactly one matches, the rest see zero
// rows and report ErrNotFound.
func (s *UserStore) RedeemResetToken(ctx context.Context, token, hashedPassword string) (*auth.User, error) {
	if token == "" {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET hashed_password = $2, reset_token = NULL, updated_at = $3
		WHERE reset_token = $1
		RETURNING `+userColumns,
		token, hashedPassword, time.Now())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_REDEEM_RESET_FAILED").
			With("operation", "redeem reset token").
			Wrap(err)
	}
	return user, nil
}

// buildWhere renders the query's set fields as positional conditions.
func buildWhere(q auth.Query) (string, []any) {
	var conds []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if q.ID != nil {
		add("id", q.ID.String())
	}
	if q.Email != nil {
		add("email", *q.Email)
	}
	if q.SessionID != nil {
		add("session_id", *q.SessionID)
	}
	if q.ResetToken != nil {
		add("reset_token", *q.ResetToken)
	}

	return strings.Join(conds, " AND "), args
}

// scanUser scans a single row into a User. Callers are responsible for
// handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		hashedPassword string
		sessionID      *string
		resetToken     *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &email, &hashedPassword, &sessionID, &resetToken, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
		SessionID:      sessionID,
		ResetToken:     resetToken,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
