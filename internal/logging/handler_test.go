// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/logging"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestSetup_RedactsPII(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("gatehouse", "test", "json", &buf)

	logger.Info("user registered",
		"email", "bob@example.com",
		"password", "hunter2",
		"user_id", "abc123",
	)

	record := logLine(t, &buf)
	assert.Equal(t, logging.Redaction, record["email"])
	assert.Equal(t, logging.Redaction, record["password"])
	assert.Equal(t, "abc123", record["user_id"], "non-PII attributes pass through")
	assert.Equal(t, "user registered", record["msg"])
}

func TestSetup_RedactsEveryPIIField(t *testing.T) {
	for _, field := range logging.PIIFields {
		t.Run(field, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.Setup("gatehouse", "test", "json", &buf)

			logger.Info("event", field, "sensitive value")

			record := logLine(t, &buf)
			assert.Equal(t, logging.Redaction, record[field])
		})
	}
}

func TestSetup_StampsServiceIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("gatehouse", "1.2.3", "json", &buf)

	logger.Info("hello")

	record := logLine(t, &buf)
	assert.Equal(t, "gatehouse", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
}

func TestSetup_RedactsInsideGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("gatehouse", "test", "json", &buf)

	logger.Info("event", slog.Group("user",
		slog.String("email", "bob@example.com"),
		slog.String("id", "abc123"),
	))

	record := logLine(t, &buf)
	group, ok := record["user"].(map[string]any)
	require.True(t, ok, "expected user group, got %T", record["user"])
	assert.Equal(t, logging.Redaction, group["email"])
	assert.Equal(t, "abc123", group["id"])
}

func TestSetup_RedactsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("gatehouse", "test", "json", &buf)

	logger.With("email", "bob@example.com").Info("event")

	record := logLine(t, &buf)
	assert.Equal(t, logging.Redaction, record["email"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("gatehouse", "test", "text", &buf)

	logger.Info("event", "email", "bob@example.com")

	out := buf.String()
	assert.Contains(t, out, "email="+logging.Redaction)
	assert.NotContains(t, out, "bob@example.com")
}
