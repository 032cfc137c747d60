// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory provides an in-memory credential store, used by tests
// and as a development backend for the serve command.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Store implements auth.UserStore with a mutex-guarded map. All
// check-then-act sequences run under the lock, giving the same
// serialization guarantees the Postgres store gets from its unique
// index and atomic updates.
type Store struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// AddUser inserts a new user record.
func (s *Store) AddUser(_ context.Context, email, hashedPassword string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, auth.ErrDuplicateEmail
	}

	now := time.Now()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID

	return cloneUser(user), nil
}

// FindUserBy returns the first user matching all set query fields.
func (s *Store) FindUserBy(_ context.Context, q auth.Query) (*auth.User, error) {
	if q.IsEmpty() {
		return nil, auth.ErrInvalidQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.byID {
		if matches(user, q) {
			return cloneUser(user), nil
		}
	}
	return nil, auth.ErrNotFound
}

// UpdateUser applies a partial update to the record with the given id.
func (s *Store) UpdateUser(_ context.Context, id ulid.ULID, fields map[auth.Field]*string) error {
	for f, v := range fields {
		if !f.Valid() {
			return auth.ErrInvalidField
		}
		// hashed_password is NOT NULL in the Postgres schema; both
		// backends reject clearing it.
		if f == auth.FieldHashedPassword && v == nil {
			return auth.ErrInvalidField
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}

	for f, v := range fields {
		switch f {
		case auth.FieldHashedPassword:
			user.HashedPassword = *v
		case auth.FieldSessionID:
			user.SessionID = cloneString(v)
		case auth.FieldResetToken:
			user.ResetToken = cloneString(v)
		}
	}
	user.UpdatedAt = time.Now()
	return nil
}

// RedeemResetToken atomically swaps the password and clears the reset
// token for the user holding it. The single lock makes the compare and
// the clear one step, so a token redeems at most once.
func (s *Store) RedeemResetToken(_ context.Context, token, hashedPassword string) (*auth.User, error) {
	if token == "" {
		return nil, auth.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.byID {
		if user.ResetToken != nil && *user.ResetToken == token {
			user.HashedPassword = hashedPassword
			user.ResetToken = nil
			user.UpdatedAt = time.Now()
			return cloneUser(user), nil
		}
	}
	return nil, auth.ErrNotFound
}

func matches(user *auth.User, q auth.Query) bool {
	if q.ID != nil && user.ID.Compare(*q.ID) != 0 {
		return false
	}
	if q.Email != nil && user.Email != *q.Email {
		return false
	}
	if q.SessionID != nil && (user.SessionID == nil || *user.SessionID != *q.SessionID) {
		return false
	}
	if q.ResetToken != nil && (user.ResetToken == nil || *user.ResetToken != *q.ResetToken) {
		return false
	}
	return true
}

// cloneUser returns a deep copy so callers never alias store state.
func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.SessionID = cloneString(u.SessionID)
	c.ResetToken = cloneString(u.ResetToken)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Compile-time interface check.
var _ auth.UserStore = (*Store)(nil)
