// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/i18n"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Error page elements.
const (
	ElementErrorPage = ui.NamespacePrefix + ":errorpage"
	ElementTitle     = ui.NamespacePrefix + ":title"
	ElementMessage   = ui.NamespacePrefix + ":message"
	ElementDetail    = ui.NamespacePrefix + ":detail"
)

// =============================================================================
// Error Code Conversion (AJAX and content)
// =============================================================================

// ErrorCode converts failures of AJAX and content requests into an HTTP
// error code with a localized message. Escapes pass through untouched.
//
// Configuration errors (escape.ErrConfiguration) become 400, everything
// else 500. In developer mode the error text is appended to the message.
// Paint output is buffered so that a failure part way through replaces the
// whole response.
type ErrorCode struct {
	Base
	kind      Kind
	logger    *slog.Logger
	developer bool
}

// NewAjaxError creates the error converter of an AJAX chain.
func NewAjaxError(logger *slog.Logger, developer bool) *ErrorCode {
	return newErrorCode(KindAjaxError, logger, developer)
}

// NewContentError creates the error converter of a content chain.
func NewContentError(logger *slog.Logger, developer bool) *ErrorCode {
	return newErrorCode(KindContentError, logger, developer)
}

func newErrorCode(kind Kind, logger *slog.Logger, developer bool) *ErrorCode {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorCode{kind: kind, logger: logger, developer: developer}
}

// Kind implements Interceptor.
func (e *ErrorCode) Kind() Kind { return e.kind }

// ServiceRequest converts action failures.
func (e *ErrorCode) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	return e.convert(uic, "action", escape.Recover(func() escape.Outcome {
		return e.Base.ServiceRequest(uic, req)
	}))
}

// PreparePaint converts prepare failures.
func (e *ErrorCode) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	return e.convert(uic, "prepare", escape.Recover(func() escape.Outcome {
		return e.Base.PreparePaint(uic, req)
	}))
}

// Paint buffers the backing's output and writes it only if it succeeded.
func (e *ErrorCode) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	var buf bytes.Buffer
	out := escape.Recover(func() escape.Outcome {
		return e.Base.Paint(uic, rc.Divert(&buf))
	})
	if !out.IsFailure() && !out.IsEscape() {
		rc.XML().Raw(buf.String())
	}
	return e.convert(uic, "paint", out)
}

func (e *ErrorCode) convert(uic ui.Context, phase string, out escape.Outcome) escape.Outcome {
	if !out.IsFailure() {
		return out
	}
	code, key := http.StatusInternalServerError, i18n.InternalError
	if errors.Is(out.Err, escape.ErrConfiguration) {
		code, key = http.StatusBadRequest, i18n.BadRequest
	}
	e.logger.Error("Request failed, sending error code",
		"kind", e.kind.String(),
		"phase", phase,
		"code", code,
		"session_id", ui.SessionID(uic),
		"error", out.Err,
	)
	msg := i18n.Message(uic.Locale(), key)
	if e.developer {
		msg += ": " + out.Err.Error()
	}
	return escape.Code(code, msg)
}

// =============================================================================
// Fatal Error (primary requests)
// =============================================================================

// ErrorPageFunc builds the component painted in place of the tree when a
// request fails.
type ErrorPageFunc func(uic ui.Context, err error) ui.Component

// FatalErrorConfig configures FatalError.
type FatalErrorConfig struct {
	Logger    *slog.Logger
	ErrorPage ErrorPageFunc
	Developer bool
	Audit     extensions.AuditLogger

	// OnFatal runs after a render failure, typically to invalidate the
	// user's session. req is nil if the failure came before PreparePaint.
	// Optional.
	OnFatal func(req transport.Request, uic ui.Context, err error)
}

// FatalError is the last line of defence of a primary request: a failure
// while preparing or painting replaces the whole page with an error page.
//
// # Description
//
// Paint output of the backing is buffered and discarded on failure, so the
// client never receives half a page. Action-phase failures are left to the
// driver, which renders them through the normal render path instead.
type FatalError struct {
	Base
	cfg FatalErrorConfig

	req    transport.Request
	failed error
}

// NewFatalError creates the fatal error interceptor.
func NewFatalError(cfg FatalErrorConfig) *FatalError {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ErrorPage == nil {
		cfg.ErrorPage = DefaultErrorPage(cfg.Developer)
	}
	if cfg.Audit == nil {
		cfg.Audit = &extensions.NopAuditLogger{}
	}
	return &FatalError{cfg: cfg}
}

// Kind implements Interceptor.
func (f *FatalError) Kind() Kind { return KindFatalError }

// PreparePaint records a failure instead of returning it, so Paint can
// still produce the error page.
func (f *FatalError) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	f.req = req
	out := escape.Recover(func() escape.Outcome {
		return f.Base.PreparePaint(uic, req)
	})
	if out.IsFailure() {
		f.failed = out.Err
		return escape.Proceed()
	}
	return out
}

// Paint paints the backing, or the error page if anything failed.
func (f *FatalError) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	if f.failed == nil {
		var buf bytes.Buffer
		out := escape.Recover(func() escape.Outcome {
			return f.Base.Paint(uic, rc.Divert(&buf))
		})
		switch {
		case out.IsEscape():
			return out
		case !out.IsFailure():
			rc.XML().Raw(buf.String())
			return out
		}
		f.failed = out.Err
	}

	f.cfg.Logger.Error("Fatal error during render, painting error page",
		"session_id", ui.SessionID(uic),
		"error", f.failed,
	)
	_ = f.cfg.Audit.Log(f.context(), extensions.AuditEvent{
		EventType:    extensions.EventFatalError,
		SessionID:    ui.SessionID(uic),
		RequestClass: transport.ClassPrimary.String(),
		Outcome:      "error_page",
	})
	if f.cfg.OnFatal != nil {
		f.cfg.OnFatal(f.req, uic, f.failed)
	}
	return PaintErrorPage(uic, rc, f.cfg.ErrorPage(uic, f.failed))
}

func (f *FatalError) context() context.Context {
	if f.req != nil {
		return f.req.Context()
	}
	return context.Background()
}

// PaintErrorPage paints page inside the page shell. If that fails too a
// static last-resort document is written instead.
func PaintErrorPage(uic ui.Context, rc *ui.RenderContext, page ui.Component) escape.Outcome {
	rc.SetContentType(ContentTypeXML)
	var buf bytes.Buffer
	out := escape.Recover(func() escape.Outcome {
		div := rc.Divert(&buf)
		return paintShell(uic, div, func() escape.Outcome {
			return page.Paint(uic, div)
		})
	})
	if out.IsFailure() {
		return WriteLastResort(rc.XML(), i18n.Message(uic.Locale(), i18n.InternalError))
	}
	rc.XML().Raw(buf.String())
	return escape.Proceed()
}

// WriteLastResort writes a self-contained error document that depends on
// nothing but the message.
func WriteLastResort(x *ui.XMLWriter, message string) escape.Outcome {
	x.Raw(ui.XMLPrologue)
	x.Open(ElementRoot).Attr("xmlns:"+ui.NamespacePrefix, ui.Namespace).Close()
	x.Open(ElementErrorPage).Close()
	x.Open(ElementMessage).Close().Text(message).End(ElementMessage)
	x.End(ElementErrorPage)
	x.End(ElementRoot)
	if err := x.Err(); err != nil {
		return escape.Fail(err)
	}
	return escape.Proceed()
}

// =============================================================================
// Error Page Component
// =============================================================================

// ErrorPage is the default component painted for a failed request. It
// shows a localized message and, in developer mode, the error text and
// the stack of a recovered panic.
type ErrorPage struct {
	ui.Base
	err       error
	developer bool
}

// DefaultErrorPage returns an ErrorPageFunc building ErrorPage components.
func DefaultErrorPage(developer bool) ErrorPageFunc {
	return func(uic ui.Context, err error) ui.Component {
		return NewErrorPage(err, developer)
	}
}

// NewErrorPage creates an error page for err.
func NewErrorPage(err error, developer bool) *ErrorPage {
	return &ErrorPage{Base: ui.NewBase("errorpage"), err: err, developer: developer}
}

// Err returns the error being presented.
func (p *ErrorPage) Err() error { return p.err }

// MessageKey selects the user message for err.
func MessageKey(err error) i18n.Key {
	switch {
	case errors.Is(err, escape.ErrSessionExpired):
		return i18n.SessionExpired
	case errors.Is(err, escape.ErrSessionToken):
		return i18n.SessionTokenInvalid
	case errors.Is(err, escape.ErrConfiguration):
		return i18n.BadRequest
	default:
		return i18n.InternalError
	}
}

// Paint implements ui.Component.
func (p *ErrorPage) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	x := rc.XML()
	tag := uic.Locale()
	x.Open(ElementErrorPage).Attr("id", ui.RenderedID(uic, p)).Close()
	x.Open(ElementTitle).Close().Text(i18n.Message(tag, i18n.ErrorPageTitle)).End(ElementTitle)
	x.Open(ElementMessage).Close().Text(i18n.Message(tag, MessageKey(p.err))).End(ElementMessage)
	if p.developer && p.err != nil {
		x.Open(ElementDetail).Attr("label", i18n.Message(tag, i18n.ErrorPageDetail)).Close()
		x.Text(p.err.Error())
		var pe *escape.PanicError
		if errors.As(p.err, &pe) {
			x.Text("\n").Text(string(pe.Stack))
		}
		x.End(ElementDetail)
	}
	x.End(ElementErrorPage)
	return escape.Proceed()
}

var (
	_ Interceptor  = (*ErrorCode)(nil)
	_ Interceptor  = (*FatalError)(nil)
	_ ui.Component = (*ErrorPage)(nil)
)
