// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
	if _, ok := opts.StepErrorHandler.(*NopStepErrorHandler); !ok {
		t.Error("DefaultOptions().StepErrorHandler should be *NopStepErrorHandler")
	}
	if _, ok := opts.TemplateEngine.(*NopTemplateEngine); !ok {
		t.Error("DefaultOptions().TemplateEngine should be *NopTemplateEngine")
	}
}

func TestServiceOptions_Normalize(t *testing.T) {
	custom := &MemoryAuditLogger{}
	opts := ServiceOptions{AuditLogger: custom}.Normalize()

	if opts.AuditLogger != custom {
		t.Error("Normalize should keep a configured AuditLogger")
	}
	if opts.StepErrorHandler == nil || opts.TemplateEngine == nil {
		t.Error("Normalize should fill nil hooks")
	}
}

func TestServiceOptions_BuildersDoNotMutateOriginal(t *testing.T) {
	original := DefaultOptions()
	custom := &MemoryAuditLogger{}

	updated := original.WithAudit(custom)

	if updated.AuditLogger != custom {
		t.Error("WithAudit should set the logger on the copy")
	}
	if _, ok := original.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("WithAudit should not modify the original options")
	}
}

// ============================================================================
// AuditLogger Tests
// ============================================================================

func TestMemoryAuditLogger_FiltersByType(t *testing.T) {
	ctx := context.Background()
	l := &MemoryAuditLogger{}

	_ = l.Log(ctx, AuditEvent{EventType: EventStepMismatch, SessionID: "s1"})
	_ = l.Log(ctx, AuditEvent{EventType: EventSessionCreated, SessionID: "s1"})
	_ = l.Log(ctx, AuditEvent{EventType: EventStepMismatch, SessionID: "s2"})

	if got := len(l.Events()); got != 3 {
		t.Fatalf("Events() returned %d events, want 3", got)
	}
	steps := l.Events(EventStepMismatch)
	if len(steps) != 2 {
		t.Fatalf("Events(step) returned %d events, want 2", len(steps))
	}
	if steps[0].Timestamp.IsZero() {
		t.Error("Log should stamp events with zero Timestamp")
	}
}

func TestSlogAuditLogger_WritesRecord(t *testing.T) {
	var buf bytes.Buffer
	l := &SlogAuditLogger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := l.Log(context.Background(), AuditEvent{
		EventType:    EventSessionTokenMismatch,
		RequestClass: "ajax",
		Outcome:      "rejected",
	})
	if err != nil {
		t.Fatalf("Log returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("guard.session_token")) {
		t.Errorf("log output missing event type: %s", buf.String())
	}
}

// ============================================================================
// Hook Tests
// ============================================================================

func TestStepErrorHandlerFunc(t *testing.T) {
	var got StepError
	h := StepErrorHandlerFunc(func(ctx context.Context, e StepError) { got = e })

	h.HandleStepError(context.Background(), StepError{Expected: 4, Got: 2})

	if got.Expected != 4 || got.Got != 2 {
		t.Errorf("handler received %+v", got)
	}
}

func TestNopTemplateEngine(t *testing.T) {
	in := []byte("<ui:text>hi</ui:text>")
	out, err := (&NopTemplateEngine{}).Render(context.Background(), in)
	if err != nil || !bytes.Equal(in, out) {
		t.Errorf("Render = %q, %v; want input unchanged", out, err)
	}
	if !IsNop(nil) || !IsNop(&NopTemplateEngine{}) {
		t.Error("IsNop should accept nil and the nop engine")
	}
}
