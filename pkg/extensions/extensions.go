// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the hook points an embedding application uses
// to customize the request pipeline without modifying it.
//
// Every hook has a no-op default, so a pipeline built from DefaultOptions
// is fully functional.
//
// # Extension Categories
//
//   - audit.go: guard failures and session lifecycle events (AuditLogger)
//   - step.go: stale-step recovery under the warp policy (StepErrorHandler)
//   - template.go: post-processing of painted markup (TemplateEngine)
//
// # Usage
//
//	opts := extensions.DefaultOptions().
//	    WithAudit(myAuditor).
//	    WithStepErrorHandler(extensions.StepErrorHandlerFunc(onStale))
//	srv, err := server.New(cfg, opts)
package extensions

// ServiceOptions carries the hooks injected into the pipeline.
//
// Fields left nil by hand-built options are treated as their no-op default
// by Normalize.
type ServiceOptions struct {
	// AuditLogger records token mismatches, step errors and session events.
	// Default: NopAuditLogger
	AuditLogger AuditLogger

	// StepErrorHandler is notified when a stale step is warped to the
	// current state.
	// Default: NopStepErrorHandler
	StepErrorHandler StepErrorHandler

	// TemplateEngine post-processes the painted tree.
	// Default: NopTemplateEngine (output unchanged)
	TemplateEngine TemplateEngine
}

// DefaultOptions returns options with every hook set to its no-op.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger:      &NopAuditLogger{},
		StepErrorHandler: &NopStepErrorHandler{},
		TemplateEngine:   &NopTemplateEngine{},
	}
}

// Normalize fills nil hooks with their defaults.
func (opts ServiceOptions) Normalize() ServiceOptions {
	def := DefaultOptions()
	if opts.AuditLogger == nil {
		opts.AuditLogger = def.AuditLogger
	}
	if opts.StepErrorHandler == nil {
		opts.StepErrorHandler = def.StepErrorHandler
	}
	if opts.TemplateEngine == nil {
		opts.TemplateEngine = def.TemplateEngine
	}
	return opts
}

// WithAudit returns a copy of opts using logger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithStepErrorHandler returns a copy of opts using handler.
func (opts ServiceOptions) WithStepErrorHandler(handler StepErrorHandler) ServiceOptions {
	opts.StepErrorHandler = handler
	return opts
}

// WithTemplateEngine returns a copy of opts using engine.
func (opts ServiceOptions) WithTemplateEngine(engine TemplateEngine) ServiceOptions {
	opts.TemplateEngine = engine
	return opts
}
