// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager is the session lifecycle contract shared by the two
// backends: the Engine, which keeps the session id on the user record,
// and TableSessions, which keeps an in-memory token table.
type SessionManager interface {
	// CreateSession issues a session token for the user with the given
	// email, displacing any prior session. Returns (nil, nil) when the
	// user cannot be resolved.
	CreateSession(ctx context.Context, email string) (*string, error)

	// UserFromSession resolves the user behind a session id. Empty or
	// unmatched ids yield (nil, nil).
	UserFromSession(ctx context.Context, sessionID string) (*User, error)

	// DestroySession ends the user's session. Idempotent.
	DestroySession(ctx context.Context, userID ulid.ULID) error
}

// Compile-time check: the engine is the record-backed session manager.
var _ SessionManager = (*Engine)(nil)

// SessionTable is a concurrency-safe in-memory mapping from session
// token to user id. It is lifetime-scoped state owned by whoever
// constructs it, never a process-wide singleton, so independent service
// instances can coexist in tests. Entries survive only for the process
// lifetime.
type SessionTable struct {
	mu      sync.RWMutex
	byToken map[string]ulid.ULID
	byUser  map[ulid.ULID]string
}

// NewSessionTable creates an empty SessionTable.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		byToken: make(map[string]ulid.ULID),
		byUser:  make(map[ulid.ULID]string),
	}
}

// Put records token -> userID, removing any token the user held before
// (at most one active session per user).
func (t *SessionTable) Put(token string, userID ulid.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.byUser[userID]; ok {
		delete(t.byToken, prev)
	}
	t.byToken[token] = userID
	t.byUser[userID] = token
}

// Get returns the user id holding token.
func (t *SessionTable) Get(token string) (ulid.ULID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byToken[token]
	return id, ok
}

// DeleteByUser removes the user's session, if any.
func (t *SessionTable) DeleteByUser(userID ulid.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token, ok := t.byUser[userID]; ok {
		delete(t.byToken, token)
		delete(t.byUser, userID)
	}
}

// Len returns the number of active sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byToken)
}

// TableSessions implements SessionManager on top of a SessionTable,
// resolving users through the credential store. This mirrors the
// simpler session-auth variant where sessions are process-local state
// rather than a column on the user record.
type TableSessions struct {
	table  *SessionTable
	store  UserStore
	tokens TokenSource
}

// NewTableSessions creates a table-backed session manager.
func NewTableSessions(table *SessionTable, store UserStore, tokens TokenSource) (*TableSessions, error) {
	if table == nil {
		return nil, oops.Code("AUTH_SESSIONS_INVALID").Errorf("session table is required")
	}
	if store == nil {
		return nil, oops.Code("AUTH_SESSIONS_INVALID").Errorf("user store is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SESSIONS_INVALID").Errorf("token source is required")
	}
	return &TableSessions{table: table, store: store, tokens: tokens}, nil
}

// CreateSession issues a token and records it in the table.
func (s *TableSessions) CreateSession(ctx context.Context, email string) (*string, error) {
	user, err := s.store.FindUserBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token := s.tokens.NewToken()
	s.table.Put(token, user.ID)
	return &token, nil
}

// UserFromSession resolves the table entry back to a user record.
// A table hit whose user has since vanished resolves to (nil, nil).
func (s *TableSessions) UserFromSession(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, nil
	}

	userID, ok := s.table.Get(sessionID)
	if !ok {
		return nil, nil
	}

	user, err := s.store.FindUserBy(ctx, ByID(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").
			With("operation", "find user by id").
			Wrap(err)
	}
	return user, nil
}

// DestroySession removes the user's table entry. Idempotent.
func (s *TableSessions) DestroySession(_ context.Context, userID ulid.ULID) error {
	s.table.DeleteByUser(userID)
	return nil
}

// Compile-time interface check.
var _ SessionManager = (*TableSessions)(nil)
