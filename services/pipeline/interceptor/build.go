// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"log/slog"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Options selects and configures the interceptors Build assembles.
type Options struct {
	Logger  *slog.Logger
	Metrics *observability.PipelineMetrics
	Hooks   extensions.ServiceOptions

	// StepPolicy and StepErrorURL configure stale-step recovery.
	StepPolicy   StepPolicy
	StepErrorURL string

	// OnStepError runs in the user's context when a stale step is warped.
	OnStepError StepErrorFunc

	// Developer exposes error detail in error pages and messages.
	Developer bool

	// ErrorPage builds the page painted for a failed primary request.
	// Default: DefaultErrorPage(Developer).
	ErrorPage ErrorPageFunc

	// OnFatal runs after a render failure of a primary request.
	OnFatal func(req transport.Request, uic ui.Context, err error)

	// Rules enables the subordinate-control interceptor when set.
	Rules RuleEngine

	// Output filters of primary requests.
	Validate           bool
	CollapseWhitespace bool
	Debug              bool
}

// Build assembles the default chain for class. The caller attaches the
// root.
//
// # Description
//
// Primary:
//
//	Metrics, ResponseCache, FatalError, SessionToken, Step, AjaxCleanup,
//	[Subordinate], [Validation], [Whitespace], PageShell, [Debug], [Template]
//
// AJAX:
//
//	Metrics, ResponseCache, AjaxError, SessionToken, Step, [Subordinate],
//	AjaxSetup, AjaxPaint
//
// Content:
//
//	Metrics, ResponseCache, ContentError, SessionToken, Step, Window,
//	Targetable
//
// Bracketed interceptors are present only when enabled in opts. The
// guards sit outside Window so they always see the user's own
// environment. On AJAX requests Subordinate sits outside AjaxSetup so the
// rules also apply when only the trigger is serviced.
func Build(class transport.Class, opts Options) *Chain {
	hooks := opts.Hooks.Normalize()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	items := []Interceptor{
		NewMetrics(class, opts.Metrics),
		NewResponseCache(ui.CacheNone),
	}

	switch class {
	case transport.ClassAjax:
		items = append(items, NewAjaxError(logger, opts.Developer))
	case transport.ClassContent:
		items = append(items, NewContentError(logger, opts.Developer))
	default:
		items = append(items, NewFatalError(FatalErrorConfig{
			Logger:    logger,
			ErrorPage: opts.ErrorPage,
			Developer: opts.Developer,
			Audit:     hooks.AuditLogger,
			OnFatal:   opts.OnFatal,
		}))
	}

	items = append(items,
		NewSessionToken(class, logger, opts.Metrics, hooks.AuditLogger),
		NewStep(class, StepConfig{
			Policy:   opts.StepPolicy,
			ErrorURL: opts.StepErrorURL,
			Handler:  hooks.StepErrorHandler,
			OnWarp:   opts.OnStepError,
			Logger:   logger,
			Metrics:  opts.Metrics,
			Audit:    hooks.AuditLogger,
		}),
	)

	switch class {
	case transport.ClassAjax:
		if opts.Rules != nil {
			items = append(items, NewSubordinate(opts.Rules))
		}
		items = append(items, NewAjaxSetup(logger), NewAjaxPaint(logger, opts.Metrics))

	case transport.ClassContent:
		items = append(items, NewWindow(), NewTargetable())

	default:
		items = append(items, NewAjaxCleanup())
		if opts.Rules != nil {
			items = append(items, NewSubordinate(opts.Rules))
		}
		if opts.Validate {
			items = append(items, NewValidation(logger))
		}
		if opts.CollapseWhitespace {
			items = append(items, NewWhitespace())
		}
		items = append(items, NewPageShell())
		if opts.Debug {
			items = append(items, NewDebug())
		}
		if !extensions.IsNop(hooks.TemplateEngine) {
			items = append(items, NewTemplate(hooks.TemplateEngine))
		}
	}

	return NewChain(items...)
}
