// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "context"

// StepError describes a request whose step counter did not match the
// server's.
type StepError struct {
	// SessionID identifies the user session.
	SessionID string

	// Expected is the step the server issued last.
	Expected int

	// Got is the step the client sent, or -1 when it sent none.
	Got int

	// RequestClass is "primary" or "ajax".
	RequestClass string
}

// StepErrorHandler is called when a stale step is recovered by warping the
// client to the current state. Implementations typically report or count
// the event; changes to the user's page go through the pipeline's
// per-context step hook, which runs right after this one.
//
// The handler runs during the action phase while the user's context is
// locked. It must not block.
type StepErrorHandler interface {
	HandleStepError(ctx context.Context, stepErr StepError)
}

// StepErrorHandlerFunc adapts a function to StepErrorHandler.
type StepErrorHandlerFunc func(ctx context.Context, stepErr StepError)

// HandleStepError calls f.
func (f StepErrorHandlerFunc) HandleStepError(ctx context.Context, stepErr StepError) {
	f(ctx, stepErr)
}

// NopStepErrorHandler ignores step errors.
type NopStepErrorHandler struct{}

// HandleStepError does nothing.
func (h *NopStepErrorHandler) HandleStepError(ctx context.Context, stepErr StepError) {}

var (
	_ StepErrorHandler = StepErrorHandlerFunc(nil)
	_ StepErrorHandler = (*NopStepErrorHandler)(nil)
)
