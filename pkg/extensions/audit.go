// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Audit event types emitted by the pipeline.
const (
	EventSessionTokenMismatch = "guard.session_token"
	EventStepMismatch         = "guard.step"
	EventSessionCreated       = "session.created"
	EventSessionInvalidated   = "session.invalidated"
	EventFatalError           = "render.fatal"
)

// AuditEvent is one security-relevant occurrence in the pipeline.
//
// # Event Categories
//
//   - Guards: "guard.session_token", "guard.step"
//   - Session: "session.created", "session.invalidated"
//   - Render: "render.fatal"
//
// Session tokens are never placed in an event. Guards record only whether
// a token was present.
type AuditEvent struct {
	// EventType categorizes the event, e.g. "guard.step".
	EventType string

	// Timestamp is when the event occurred. Zero means now.
	Timestamp time.Time

	// SessionID identifies the user session, not the token.
	SessionID string

	// RequestClass is "primary", "ajax" or "content".
	RequestClass string

	// Outcome is what the pipeline did: "rejected", "redirected", "warped",
	// "created", "invalidated".
	Outcome string

	// Metadata holds event-specific detail such as expected/got steps.
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should return
// quickly; the pipeline calls Log while holding a user context lock.
type AuditLogger interface {
	// Log records an event.
	Log(ctx context.Context, event AuditEvent) error

	// Flush persists buffered events. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Flush does nothing.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// SlogAuditLogger writes each event as a structured log record at Info
// level.
type SlogAuditLogger struct {
	Logger *slog.Logger
}

// Log writes the event.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
		slog.String("session_id", event.SessionID),
		slog.String("request_class", event.RequestClass),
		slog.String("outcome", event.Outcome),
		slog.Any("metadata", event.Metadata),
	)
	return nil
}

// Flush does nothing; records are written synchronously.
func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps events in memory. Tests and the demo use it to
// inspect what the guards reported.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// Log appends the event.
func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Flush does nothing.
func (l *MemoryAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// Events returns a copy of the recorded events, optionally limited to the
// given event types.
func (l *MemoryAuditLogger) Events(types ...string) []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		if len(types) == 0 || contains(types, e.EventType) {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
