// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatehouse/gatehouse/internal/access"
)

func TestRequiresAuth(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		excluded []string
		want     bool
	}{
		{
			name:     "no exemptions means everything requires auth",
			path:     "/api/v1/status",
			excluded: []string{},
			want:     true,
		},
		{
			name:     "exact match is exempt",
			path:     "/api/v1/status",
			excluded: []string{"/api/v1/status"},
			want:     false,
		},
		{
			name:     "wildcard prefix exempts matching paths",
			path:     "/api/v1/status",
			excluded: []string{"/api/v1/stat*"},
			want:     false,
		},
		{
			name:     "wildcard prefix does not exempt non-matching paths",
			path:     "/api/v1/users",
			excluded: []string{"/api/v1/stat*"},
			want:     true,
		},
		{
			name:     "wildcard exempts deeper paths sharing the prefix",
			path:     "/api/v1/stats/html",
			excluded: []string{"/api/v1/stat*"},
			want:     false,
		},
		{
			name:     "unrelated wildcard requires auth",
			path:     "/api/v1/stats/html",
			excluded: []string{"/api/v1/auth*"},
			want:     true,
		},
		{
			name:     "path that is a prefix of a wildcard entry is exempt",
			path:     "/api",
			excluded: []string{"/api/v1/stat*"},
			want:     false,
		},
		{
			name:     "wildcard entry keeps its bidirectional raw-text match",
			path:     "/api/v1",
			excluded: []string{"/api/v1/stat*"},
			want:     false,
		},
		{
			name:     "path extending a non-wildcard entry is exempt",
			path:     "/api/v1/status/extra",
			excluded: []string{"/api/v1/status"},
			want:     false,
		},
		{
			name:     "entry extending the path is exempt",
			path:     "/api",
			excluded: []string{"/api/v1/status"},
			want:     false,
		},
		{
			name:     "empty path requires nothing",
			path:     "",
			excluded: []string{},
			want:     false,
		},
		{
			name:     "first matching entry wins among several",
			path:     "/sessions",
			excluded: []string{"/", "/users", "/sessions"},
			want:     false,
		},
		{
			name:     "root entry exempts everything under it",
			path:     "/anything/at/all",
			excluded: []string{"/"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := access.RequiresAuth(tt.path, tt.excluded)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRule(t *testing.T) {
	t.Run("wildcard entry", func(t *testing.T) {
		rule := access.ParseRule("/api/v1/stat*")
		assert.Equal(t, "/api/v1/stat*", rule.Raw)
		assert.Equal(t, "/api/v1/stat", rule.Prefix)
		assert.True(t, rule.Wildcard)
	})

	t.Run("plain entry", func(t *testing.T) {
		rule := access.ParseRule("/api/v1/status")
		assert.Equal(t, "/api/v1/status", rule.Raw)
		assert.Equal(t, "/api/v1/status", rule.Prefix)
		assert.False(t, rule.Wildcard)
	})
}
