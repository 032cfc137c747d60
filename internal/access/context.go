// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"context"

	"github.com/gatehouse/gatehouse/internal/auth"
)

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated user.
func WithPrincipal(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// PrincipalFrom returns the authenticated user stored on the context,
// or nil if the request was not authenticated.
func PrincipalFrom(ctx context.Context) *auth.User {
	user, _ := ctx.Value(principalKey{}).(*auth.User)
	return user
}
