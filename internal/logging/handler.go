// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and redaction of personal-data attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Redaction replaces the value of any PII attribute.
const Redaction = "***"

// PIIFields are the attribute keys whose values are never emitted to
// logs. This is the canonical personal-data field list for the service.
var PIIFields = []string{"name", "email", "phone", "ssn", "password"}

// redactHandler wraps a slog.Handler to stamp service identity and
// trace context, and to redact PII attribute values.
type redactHandler struct {
	handler slog.Handler
	service string
	version string
	pii     map[string]struct{}
}

// Handle redacts PII attributes and adds trace context to the record.
func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})

	out.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		out.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		out.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, out)
}

// redact replaces the value of PII attributes, descending into groups.
func (h *redactHandler) redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		redacted := make([]slog.Attr, len(members))
		for i, m := range members {
			redacted[i] = h.redact(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	if _, ok := h.pii[a.Key]; ok {
		return slog.String(a.Key, Redaction)
	}
	return a
}

// Enabled returns true if the level is enabled.
func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
// PII attributes are redacted before they reach the base handler.
func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &redactHandler{
		handler: h.handler.WithAttrs(redacted),
		service: h.service,
		version: h.version,
		pii:     h.pii,
	}
}

// WithGroup returns a new handler with the given group.
func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
		pii:     h.pii,
	}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	if format == "text" {
		baseHandler = slog.NewTextHandler(w, opts)
	} else {
		baseHandler = slog.NewJSONHandler(w, opts)
	}

	pii := make(map[string]struct{}, len(PIIFields))
	for _, f := range PIIFields {
		pii[f] = struct{}{}
	}

	handler := &redactHandler{
		handler: baseHandler,
		service: service,
		version: version,
		pii:     pii,
	}

	return slog.New(handler)
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	logger := Setup(service, version, format, nil)
	slog.SetDefault(logger)
}
