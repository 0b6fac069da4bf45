// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package driver runs one request through the component lifecycle.
//
// # Description
//
// A Driver is created per request and moves through these states:
//
//	Uninitialized -> ContextPrepared -> ActionDone | Escaped
//	              -> RenderDone | ErrorDone -> Disposed
//
// PrepareContext locates the user's context and locks it, RunAction runs
// the action phase through the interceptor chain, and RunRender runs the
// render phase and always disposes the request. Calls made in the wrong
// state, or after disposal, do nothing.
//
// Escapes raised during the action phase are stored on the context and
// written out by RunRender without painting. Action failures are stored
// too and rendered as the error page, after the tree has been prepared.
package driver

import (
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianForms/services/pipeline/ajax"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/i18n"
	"github.com/AleutianAI/AleutianForms/services/pipeline/interceptor"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// TracerName is the OpenTelemetry instrumentation name of the driver.
const TracerName = "aleutian.forms.driver"

// =============================================================================
// States
// =============================================================================

// State is the lifecycle position of a Driver.
type State int

const (
	StateUninitialized State = iota
	StateContextPrepared
	StateActionDone
	StateEscaped
	StateRenderDone
	StateErrorDone
	StateDisposed
)

// String returns the snake_case state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateContextPrepared:
		return "context_prepared"
	case StateActionDone:
		return "action_done"
	case StateEscaped:
		return "escaped"
	case StateRenderDone:
		return "render_done"
	case StateErrorDone:
		return "error_done"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// =============================================================================
// Collaborators
// =============================================================================

// ContextProvider finds or creates the user context a request belongs to.
// The returned context is not locked; the driver locks it.
type ContextProvider interface {
	Context(req transport.Request) (*ui.SessionContext, error)
}

// Releaser is optionally implemented by a ContextProvider that wants to
// see the context once a request is finished, while it is still locked.
type Releaser interface {
	Release(req transport.Request, uic *ui.SessionContext)
}

// ChainFactory builds the interceptor chain for a request class. The
// driver attaches the root.
type ChainFactory func(class transport.Class) *interceptor.Chain

// Config holds the collaborators shared by every Driver.
type Config struct {
	// Provider locates user contexts. Required.
	Provider ContextProvider

	// Chains builds interceptor chains. Default: interceptor.Build with
	// zero Options.
	Chains ChainFactory

	// ErrorPage builds the error page for stored action failures.
	// Default: interceptor.DefaultErrorPage(Developer).
	ErrorPage interceptor.ErrorPageFunc

	Developer bool
	Logger    *slog.Logger
	Metrics   *observability.PipelineMetrics
	Tracer    trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.Chains == nil {
		c.Chains = func(class transport.Class) *interceptor.Chain {
			return interceptor.Build(class, interceptor.Options{Logger: c.Logger})
		}
	}
	if c.ErrorPage == nil {
		c.ErrorPage = interceptor.DefaultErrorPage(c.Developer)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(TracerName)
	}
	return c
}

// =============================================================================
// Driver
// =============================================================================

// Driver runs a single request. It is not safe for concurrent use and must
// not be reused.
type Driver struct {
	cfg Config

	state State
	class transport.Class
	req   transport.Request
	uic   *ui.SessionContext
	chain *interceptor.Chain
	stack *ui.Stack

	locked bool
	final  escape.Kind
}

// New creates a driver in the Uninitialized state.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg.withDefaults(), stack: ui.NewStack()}
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return d.state }

// Class returns the request class determined by PrepareContext.
func (d *Driver) Class() transport.Class { return d.class }

// Context returns the user context, or nil before PrepareContext.
func (d *Driver) Context() *ui.SessionContext { return d.uic }

// Stack returns the request's context stack.
func (d *Driver) Stack() *ui.Stack { return d.stack }

// Chain returns the interceptor chain, or nil before PrepareContext.
func (d *Driver) Chain() *interceptor.Chain { return d.chain }

// ReplaceInterceptor swaps the interceptor of the given kind in this
// request's chain. It must be called between PrepareContext and RunAction.
func (d *Driver) ReplaceInterceptor(kind interceptor.Kind, repl interceptor.Interceptor) {
	if d.chain != nil {
		d.chain = d.chain.Replace(kind, repl).Attach(d.uic.UI())
	}
}

// PrepareContext locates and locks the user context and builds the chain.
//
// # Outputs
//
//   - error: Non-nil if the provider failed. The driver stays
//     Uninitialized and holds no lock.
func (d *Driver) PrepareContext(req transport.Request) error {
	if d.state != StateUninitialized {
		return nil
	}
	uic, err := d.cfg.Provider.Context(req)
	if err != nil {
		return fmt.Errorf("preparing user context: %w", err)
	}
	uic.Acquire()
	d.locked = true
	d.req = req
	d.uic = uic
	d.class = transport.ClassOf(req)
	d.chain = d.cfg.Chains(d.class).Attach(uic.UI())
	d.state = StateContextPrepared
	return nil
}

// RunAction runs the action phase.
//
// # Description
//
// The context is pushed on the stack, the phase scratch is cleared and the
// chain's ServiceRequest runs with panics recovered. Queued invoke-later
// callbacks run afterwards. An escape is stored for RunRender and moves
// the driver to Escaped; a failure is logged and stored for RunRender to
// present, and does not stop the request.
func (d *Driver) RunAction(req transport.Request) {
	if d.state != StateContextPrepared {
		return
	}
	_, span := d.cfg.Tracer.Start(req.Context(), "pipeline.action",
		trace.WithAttributes(attribute.String("forms.class", d.class.String())),
	)
	defer span.End()

	uic := d.uic
	d.stack.Push(uic)
	defer d.stack.Pop()

	uic.ClearPhaseScratch()
	out := escape.Recover(func() escape.Outcome {
		return d.chain.ServiceRequest(uic, req)
	})
	if out.IsContinue() {
		out = d.drain()
	}
	span.SetAttributes(attribute.String("forms.outcome", out.Kind.String()))

	switch {
	case out.IsEscape():
		uic.SetFwkAttribute(ui.AttrActionEscape, out)
		d.state = StateEscaped
	case out.IsFailure():
		d.cfg.Logger.Error("Action phase failed",
			"class", d.class.String(),
			"session_id", uic.ID(),
			"error", out.Err,
		)
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "action failed")
		uic.SetFwkAttribute(ui.AttrActionFailure, out.Err)
		d.state = StateActionDone
	default:
		d.state = StateActionDone
	}
}

// RunRender runs the render phase and disposes the request.
//
// # Description
//
// A stored action escape is written out (redirect, error code, or error
// page) and nothing is painted. Otherwise the chain prepares the tree,
// invoke-later callbacks run, and either the stored action failure is
// rendered as the error page or the chain paints. Scratch maps are cleared
// and the context is released on every exit path.
//
// # Outputs
//
//   - error: A failure writing to resp.
func (d *Driver) RunRender(req transport.Request, resp transport.Response) error {
	switch d.state {
	case StateContextPrepared, StateActionDone, StateEscaped:
	default:
		return nil
	}
	defer d.Dispose()

	_, span := d.cfg.Tracer.Start(req.Context(), "pipeline.render",
		trace.WithAttributes(attribute.String("forms.class", d.class.String())),
	)
	defer span.End()

	uic := d.uic
	d.stack.Push(uic)
	defer d.stack.Pop()

	uic.ClearPhaseScratch()
	rc := ui.NewRenderContext(resp.Writer(), d.stack).WithResponse(resp)

	if stored, ok := uic.FwkAttribute(ui.AttrActionEscape).(escape.Outcome); ok {
		uic.SetFwkAttribute(ui.AttrActionEscape, nil)
		span.SetAttributes(attribute.String("forms.outcome", stored.Kind.String()))
		return d.writeEscape(resp, rc, stored)
	}

	out := escape.Recover(func() escape.Outcome {
		return d.chain.PreparePaint(uic, req)
	})
	if out.IsContinue() {
		out = d.drain()
	}

	if failed, ok := uic.FwkAttribute(ui.AttrActionFailure).(error); ok && !out.IsEscape() {
		uic.SetFwkAttribute(ui.AttrActionFailure, nil)
		span.SetAttributes(attribute.String("forms.outcome", "error_page"))
		return d.renderError(rc, failed)
	}

	if out.IsContinue() {
		out = escape.Recover(func() escape.Outcome {
			return d.chain.Paint(uic, rc)
		})
	}
	span.SetAttributes(attribute.String("forms.outcome", out.Kind.String()))

	switch {
	case out.IsEscape():
		return d.writeEscape(resp, rc, out)
	case out.IsFailure():
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "render failed")
		d.cfg.Logger.Error("Render phase failed outside error handling",
			"class", d.class.String(),
			"session_id", uic.ID(),
			"error", out.Err,
		)
		d.final = escape.Failure
		d.state = StateErrorDone
		interceptor.WriteLastResort(rc.XML(), i18n.Message(uic.Locale(), i18n.InternalError))
		return rc.XML().Err()
	default:
		d.final = escape.Continue
		d.state = StateRenderDone
		return rc.XML().Err()
	}
}

// Dispose releases the context. RunRender calls it; callers that abandon a
// request before rendering must call it themselves. It is idempotent.
func (d *Driver) Dispose() {
	if d.state == StateDisposed {
		return
	}
	if d.uic != nil {
		d.uic.ClearScratchMaps()
		d.uic.ClearCurrentAjax()
		d.uic.SetFwkAttribute(ui.AttrActionEscape, nil)
		d.uic.SetFwkAttribute(ui.AttrActionFailure, nil)
		if r, ok := d.cfg.Provider.(Releaser); ok && d.req != nil {
			r.Release(d.req, d.uic)
		}
		if d.locked {
			d.uic.Release()
			d.locked = false
		}
		d.cfg.Metrics.RecordRequest(d.class.String(), d.final.String())
	}
	d.state = StateDisposed
}

func (d *Driver) drain() escape.Outcome {
	return escape.Recover(func() escape.Outcome {
		d.uic.DrainInvokeLaters()
		return escape.Proceed()
	})
}

func (d *Driver) renderError(rc *ui.RenderContext, err error) error {
	d.final = escape.ErrorPage
	d.state = StateErrorDone
	interceptor.PaintErrorPage(d.uic, rc, d.cfg.ErrorPage(d.uic, err))
	return rc.XML().Err()
}

func (d *Driver) writeEscape(resp transport.Response, rc *ui.RenderContext, out escape.Outcome) error {
	d.final = out.Kind
	d.state = StateRenderDone
	switch out.Kind {
	case escape.Redirect:
		if d.class == transport.ClassAjax {
			rc.SetContentType(interceptor.ContentTypeXML)
			ajax.WriteRedirect(rc.XML(), out.URL)
			return rc.XML().Err()
		}
		return resp.Redirect(out.URL)
	case escape.ErrorCode:
		return resp.SendError(out.Code, out.Message)
	default:
		if d.class == transport.ClassPrimary {
			return d.renderError(rc, out.Err)
		}
		return resp.SendError(http.StatusInternalServerError, i18n.Message(d.uic.Locale(), i18n.InternalError))
	}
}

// =============================================================================
// Convenience
// =============================================================================

// Process runs a complete request: prepare, action, render.
func Process(cfg Config, req transport.Request, resp transport.Response) error {
	d := New(cfg)
	if err := d.PrepareContext(req); err != nil {
		return err
	}
	defer d.Dispose()
	d.RunAction(req)
	return d.RunRender(req, resp)
}
