// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

func TestErrorCode_ConvertsFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"configuration", escape.ErrConfiguration, http.StatusBadRequest},
		{"anything else", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newSpy("root")
			root.action = escape.Fail(tt.err)
			conv := NewAjaxError(nil, false)
			NewChain(conv).Attach(root)

			out := conv.ServiceRequest(newContext(root), post(nil))
			assert.Equal(t, escape.ErrorCode, out.Kind)
			assert.Equal(t, tt.wantCode, out.Code)
			assert.NotContains(t, out.Message, tt.err.Error())
		})
	}
}

func TestErrorCode_DeveloperDetail(t *testing.T) {
	root := newSpy("root")
	root.prepare = escape.Failf("missing column %q", "qty")
	conv := NewContentError(nil, true)
	NewChain(conv).Attach(root)

	out := conv.PreparePaint(newContext(root), get(nil))
	assert.Equal(t, http.StatusInternalServerError, out.Code)
	assert.Contains(t, out.Message, `missing column "qty"`)
	assert.Equal(t, KindContentError, conv.Kind())
}

func TestErrorCode_EscapesPassThrough(t *testing.T) {
	root := newSpy("root")
	root.action = escape.RedirectTo("/x")
	conv := NewAjaxError(nil, false)
	NewChain(conv).Attach(root)

	out := conv.ServiceRequest(newContext(root), post(nil))
	assert.Equal(t, escape.Redirect, out.Kind)
}

func TestErrorCode_PaintDiscardsPartialOutput(t *testing.T) {
	root := newSpy("root")
	root.panicOn = "paint"
	conv := NewAjaxError(nil, false)
	NewChain(conv).Attach(root)

	body, _, out := paint(newContext(root), conv)
	assert.Equal(t, escape.ErrorCode, out.Kind)
	assert.Empty(t, body)

	root.panicOn = ""
	body, _, out = paint(newContext(root), conv)
	assert.True(t, out.IsContinue())
	assert.Equal(t, `<ui:spy id="root"></ui:spy>`, body)
}

func TestFatalError_PaintFailureRendersErrorPage(t *testing.T) {
	root := newSpy("root")
	root.body = "half a page"
	root.paint = escape.Failf("template exploded")
	audit := &extensions.MemoryAuditLogger{}
	var fatal error
	var fatalReq transport.Request
	f := NewFatalError(FatalErrorConfig{
		Audit: audit,
		OnFatal: func(req transport.Request, _ ui.Context, err error) {
			fatalReq, fatal = req, err
		},
	})
	NewChain(f).Attach(root)
	uic := newContext(root)
	req := post(nil)

	require.True(t, f.PreparePaint(uic, req).IsContinue())
	body, resp, out := paint(uic, f)

	assert.True(t, out.IsContinue())
	assert.NotContains(t, body, "half a page")
	assert.Contains(t, body, `<ui:errorpage id="errorpage">`)
	assert.Contains(t, body, "Sorry, an internal error occurred.")
	assert.NotContains(t, body, "template exploded", "no detail outside developer mode")
	assert.Equal(t, ContentTypeXML, resp.Headers.Get("Content-Type"))
	assert.EqualError(t, fatal, "template exploded")
	assert.Same(t, req, fatalReq)
	assert.Len(t, audit.Events(extensions.EventFatalError), 1)
	require.NoError(t, CheckWellFormed([]byte(body)))
}

func TestFatalError_PrepareFailureIsPaintedLater(t *testing.T) {
	root := newSpy("root")
	root.panicOn = "prepare"
	f := NewFatalError(FatalErrorConfig{Developer: true})
	NewChain(f).Attach(root)
	uic := newContext(root)

	assert.True(t, f.PreparePaint(uic, post(nil)).IsContinue())
	body, _, _ := paint(uic, f)
	assert.Contains(t, body, "prepare exploded")
	assert.NotContains(t, root.calls, "paint:root")
}

func TestFatalError_SuccessPassesOutput(t *testing.T) {
	root := newSpy("root")
	f := NewFatalError(FatalErrorConfig{})
	NewChain(f).Attach(root)
	uic := newContext(root)

	f.PreparePaint(uic, post(nil))
	body, _, out := paint(uic, f)
	assert.True(t, out.IsContinue())
	assert.Equal(t, `<ui:spy id="root"></ui:spy>`, body)
}

func TestFatalError_PaintEscapeDiscardsPartialOutput(t *testing.T) {
	root := newSpy("root")
	root.body = "half a page"
	root.paint = escape.RedirectTo("/elsewhere")
	f := NewFatalError(FatalErrorConfig{})
	NewChain(f).Attach(root)
	uic := newContext(root)

	f.PreparePaint(uic, post(nil))
	body, _, out := paint(uic, f)
	assert.Equal(t, escape.Redirect, out.Kind)
	assert.Equal(t, "/elsewhere", out.URL)
	assert.Empty(t, body)
}

// brokenPage fails to paint, forcing the last-resort document.
type brokenPage struct{ ui.Base }

func (b *brokenPage) Paint(ui.Context, *ui.RenderContext) escape.Outcome {
	panic("error page broke too")
}

func TestPaintErrorPage_LastResort(t *testing.T) {
	uic := newContext(nil)
	page := &brokenPage{Base: ui.NewBase("broken")}

	var out escape.Outcome
	body, _, _ := paint(uic, phasedFunc(func(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
		out = PaintErrorPage(uic, rc, page)
		return out
	}))
	assert.True(t, out.IsContinue())
	assert.Contains(t, body, "<ui:errorpage><ui:message>Sorry, an internal error occurred.</ui:message></ui:errorpage>")
	assert.NoError(t, CheckWellFormed([]byte(body)))
}

func TestMessageKey(t *testing.T) {
	page := NewErrorPage(escape.ErrSessionExpired, false)
	assert.ErrorIs(t, page.Err(), escape.ErrSessionExpired)
	assert.Equal(t, "session.expired", string(MessageKey(escape.ErrSessionExpired)))
	assert.Equal(t, "session.token.invalid", string(MessageKey(escape.ErrSessionToken)))
	assert.Equal(t, "request.bad", string(MessageKey(escape.ErrConfiguration)))
	assert.Equal(t, "error.internal", string(MessageKey(errors.New("x"))))
}

func TestErrorPage_DeveloperShowsPanicStack(t *testing.T) {
	out := escape.Recover(func() escape.Outcome { panic("kaboom") })
	page := NewErrorPage(out.Err, true)
	body, _, _ := paint(newContext(page), page)
	assert.Contains(t, body, `<ui:detail label="Details">`)
	assert.Contains(t, body, "kaboom")
	assert.Contains(t, body, "goroutine")
}
