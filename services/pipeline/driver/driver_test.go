// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package driver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/interceptor"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
	"github.com/AleutianAI/AleutianForms/services/pipeline/widgets"
)

// =============================================================================
// Fixture
// =============================================================================

// provider hands out one context and counts releases.
type provider struct {
	uic      *ui.SessionContext
	err      error
	mu       sync.Mutex
	released int
}

func (p *provider) Context(transport.Request) (*ui.SessionContext, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.uic, nil
}

func (p *provider) Release(transport.Request, *ui.SessionContext) {
	p.mu.Lock()
	p.released++
	p.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	provider *provider
	cfg      Config
	name     *widgets.TextField
	note     *widgets.TextField
	items    *widgets.Repeater
	later    int
	rejected int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t}
	f.name = widgets.NewTextField("name", "Name")
	f.note = widgets.NewTextField("note", "")
	qty := widgets.NewTextField("qty", "")
	f.items = widgets.NewRepeater("items",
		qty,
		f.note,
		widgets.NewButton("inc", "+1", func(uic ui.Context, _ transport.Request) escape.Outcome {
			n, _ := strconv.Atoi(qty.Value(uic))
			qty.SetValue(uic, strconv.Itoa(n+1))
			f.note.SetValue(uic, "bumped "+uic.IDPrefix())
			return escape.Proceed()
		}).WithAjaxTargets("qty", "note"),
	)
	root := widgets.NewApplication("app", "Test",
		f.name,
		widgets.NewButton("save", "Save", func(uic ui.Context, _ transport.Request) escape.Outcome {
			uic.InvokeLater(func() { f.later++ })
			return escape.Proceed()
		}),
		widgets.NewButton("explode", "Explode", func(ui.Context, transport.Request) escape.Outcome {
			panic("action exploded")
		}),
		widgets.NewButton("leave", "Leave", func(ui.Context, transport.Request) escape.Outcome {
			return escape.RedirectTo("/elsewhere")
		}),
		widgets.NewButton("reject", "Reject", func(ui.Context, transport.Request) escape.Outcome {
			f.rejected++
			return escape.Code(http.StatusConflict, "conflict")
		}).WithAjaxTargets("name"),
		f.items,
		widgets.NewContent("export", "", "text/plain", ui.CachePrivate, func(uic ui.Context) ([]byte, error) {
			return []byte("name=" + f.name.Value(uic)), nil
		}),
	)
	uic := ui.NewSessionContext("s1", root, ui.NewEnvironment("app", "/app"))
	f.items.SetRows(uic, []string{"1", "2", "3"})
	f.provider = &provider{uic: uic}
	f.cfg = Config{Provider: f.provider}
	return f
}

func (f *fixture) env() *ui.Environment { return f.provider.uic.Environment() }

func (f *fixture) do(method string, params url.Values) *transport.MemoryResponse {
	f.t.Helper()
	resp := transport.NewMemoryResponse()
	require.NoError(f.t, Process(f.cfg, transport.NewMemoryRequest(method, params, nil), resp))
	return resp
}

// submit posts params with the current token and step.
func (f *fixture) submit(params url.Values) *transport.MemoryResponse {
	f.t.Helper()
	if params == nil {
		params = url.Values{}
	}
	params.Set(transport.ParamSessionToken, f.env().SessionToken())
	if !params.Has(transport.ParamStep) {
		params.Set(transport.ParamStep, strconv.Itoa(f.env().Step()))
	}
	return f.do(http.MethodPost, params)
}

// =============================================================================
// Primary Requests
// =============================================================================

func TestProcess_FirstPageLoad(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, nil)

	body := resp.Body.String()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, ui.XMLPrologue+`<ui:root xmlns:ui="`+ui.Namespace+`"`))
	assert.Contains(t, body, `step="1"`)
	require.NotEmpty(t, f.env().SessionToken())
	assert.Contains(t, body, `token="`+f.env().SessionToken()+`"`)
	assert.Equal(t, 1, f.env().Step())
	assert.Equal(t, interceptor.ContentTypeXML, resp.Headers.Get("Content-Type"))
	assert.NoError(t, interceptor.CheckWellFormed(resp.Body.Bytes()))
	assert.Equal(t, 1, f.provider.released)
}

func TestProcess_SubmitAdvancesStep(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	token := f.env().SessionToken()

	resp := f.submit(url.Values{"name": {"Ann"}, "save": {"Save"}})
	assert.Contains(t, resp.Body.String(), `step="2"`)
	assert.Contains(t, resp.Body.String(), `value="Ann"`)
	assert.Equal(t, token, f.env().SessionToken(), "the token is stable for the context's lifetime")
	assert.Equal(t, 1, f.later, "invoke-later callbacks run after the action")
}

func TestProcess_StaleStepWarps(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	f.submit(nil)
	require.Equal(t, 2, f.env().Step())

	resp := f.submit(url.Values{"name": {"Late"}, transport.ParamStep: {"1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/app", resp.RedirectURL)
	assert.Empty(t, resp.Body.String(), "nothing is painted")
	assert.Equal(t, 2, f.env().Step(), "an escaped request does not advance the step")
	assert.Empty(t, f.name.Value(f.provider.uic), "stale input is never applied")
}

func TestProcess_WrongTokenRendersErrorPage(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.do(http.MethodPost, url.Values{
		transport.ParamSessionToken: {"forged"},
		transport.ParamStep:         {"1"},
		"name":                      {"Mallory"},
	})
	assert.Contains(t, resp.Body.String(), "<ui:errorpage")
	assert.Empty(t, f.name.Value(f.provider.uic))
}

func TestProcess_ActionPanicRendersErrorPage(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	req := transport.NewMemoryRequest(http.MethodPost, url.Values{
		transport.ParamSessionToken: {f.env().SessionToken()},
		transport.ParamStep:         {"1"},
		"explode":                   {"x"},
	}, nil)
	resp := transport.NewMemoryResponse()
	driver := New(f.cfg)
	require.NoError(t, driver.PrepareContext(req))
	driver.RunAction(req)
	assert.Equal(t, StateActionDone, driver.State())
	assert.Zero(t, driver.Stack().Depth(), "the stack is balanced after a panic")

	require.NoError(t, driver.RunRender(req, resp))
	assert.Equal(t, StateDisposed, driver.State())
	assert.Contains(t, resp.Body.String(), "<ui:errorpage")
	assert.Equal(t, 2, f.env().Step(), "the error render advances the step")
	assert.Zero(t, driver.Stack().Depth())

	require.True(t, f.provider.uic.TryAcquire(), "the context is released")
	f.provider.uic.Release()
}

func TestProcess_ActionEscapeSkipsRender(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.submit(url.Values{"leave": {"x"}})
	assert.Equal(t, "/elsewhere", resp.RedirectURL)
	assert.Equal(t, 1, f.env().Step())
	assert.Nil(t, f.provider.uic.FwkAttribute(ui.AttrActionEscape))
}

// =============================================================================
// AJAX Requests
// =============================================================================

func TestProcess_AjaxPaintsTargetsInTheirRow(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {"items-2-inc"}})
	body := resp.Body.String()

	assert.True(t, strings.HasPrefix(body, `<ui:ajaxresponse xmlns:ui="`+ui.Namespace+`" step="2">`))
	assert.Equal(t, 2, strings.Count(body, "<ui:ajaxtarget"))
	assert.Contains(t, body, `<ui:ajaxtarget id="items-2-qty" action="replace"><ui:textfield id="items-2-qty" value="1"/></ui:ajaxtarget>`)
	assert.Contains(t, body, `<ui:ajaxtarget id="items-2-note" action="replace"><ui:textfield id="items-2-note" value="bumped items-2-"/></ui:ajaxtarget>`)
	assert.NotContains(t, body, "items-1-")
	assert.NotContains(t, body, "items-3-")
	assert.NoError(t, interceptor.CheckWellFormed(resp.Body.Bytes()))
}

func TestProcess_AjaxUnknownTriggerGetsEmptyEnvelope(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {"T9"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<ui:ajaxresponse xmlns:ui="`+ui.Namespace+`" step="2"></ui:ajaxresponse>`, resp.Body.String())
}

func TestProcess_AjaxWithoutTriggerIsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcess_AjaxStaleStepRedirectsInEnvelope(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {"items-1-inc"}, transport.ParamStep: {"0"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body.String(), `<ui:redirect url="/app"/>`)
}

func TestProcess_AjaxEscapeConsumesOperation(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	_, ok := f.provider.uic.AjaxOperation("reject")
	require.True(t, ok)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {"reject"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 1, f.env().Step(), "an escaped request does not advance the step")
	_, ok = f.provider.uic.AjaxOperation("reject")
	assert.False(t, ok, "the operation is gone although nothing was painted")

	for i := 0; i < 2; i++ {
		resp = f.submit(url.Values{transport.ParamAjaxTrigger: {"reject"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, resp.Body.String(), "<ui:ajaxtarget")
	}
	assert.Equal(t, 1, f.rejected, "the action cannot be replayed")
}

func TestProcess_FullPageClearsRegistry(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	_, ok := f.provider.uic.AjaxOperation("items-3-inc")
	require.True(t, ok)

	f.items.SetRows(f.provider.uic, []string{"1"})
	f.submit(nil)
	_, ok = f.provider.uic.AjaxOperation("items-3-inc")
	assert.False(t, ok, "operations of components no longer painted are gone")
	_, ok = f.provider.uic.AjaxOperation("items-1-inc")
	assert.True(t, ok)
}

// =============================================================================
// Content Requests
// =============================================================================

func TestProcess_ContentDoesNotAdvanceStep(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	f.submit(url.Values{"name": {"Ann"}})

	resp := f.do(http.MethodGet, url.Values{
		transport.ParamTarget:       {"export"},
		transport.ParamSessionToken: {f.env().SessionToken()},
	})
	assert.Equal(t, "name=Ann", resp.Body.String())
	assert.Equal(t, "text/plain", resp.Headers.Get("Content-Type"))
	assert.Equal(t, "private, max-age=300", resp.Headers.Get("Cache-Control"))
	assert.Equal(t, 2, f.env().Step())
}

func TestProcess_ContentForUnknownTargetIsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	resp := f.do(http.MethodGet, url.Values{
		transport.ParamTarget:       {"nosuch"},
		transport.ParamSessionToken: {f.env().SessionToken()},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestDriver_ProviderError(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("store unavailable")

	d := New(f.cfg)
	err := d.PrepareContext(transport.NewMemoryRequest(http.MethodGet, nil, nil))
	assert.ErrorContains(t, err, "store unavailable")
	assert.Equal(t, StateUninitialized, d.State())
	assert.Nil(t, d.Context())
}

func TestDriver_OutOfOrderCallsAreIgnored(t *testing.T) {
	f := newFixture(t)
	req := transport.NewMemoryRequest(http.MethodGet, nil, nil)
	resp := transport.NewMemoryResponse()

	d := New(f.cfg)
	d.RunAction(req)
	require.NoError(t, d.RunRender(req, resp))
	assert.Equal(t, StateUninitialized, d.State())
	assert.Empty(t, resp.Body.String())

	require.NoError(t, d.PrepareContext(req))
	assert.Equal(t, transport.ClassPrimary, d.Class())
	d.Dispose()
	d.Dispose()
	assert.Equal(t, StateDisposed, d.State())
	d.RunAction(req)
	assert.Equal(t, StateDisposed, d.State())
	assert.Equal(t, 1, f.provider.released)
}

func TestDriver_ReplaceInterceptor(t *testing.T) {
	f := newFixture(t)
	req := transport.NewMemoryRequest(http.MethodGet, nil, nil)
	resp := transport.NewMemoryResponse()

	d := New(f.cfg)
	require.NoError(t, d.PrepareContext(req))
	d.ReplaceInterceptor(interceptor.KindResponseCache, interceptor.NewResponseCache(ui.CacheLong))
	assert.Equal(t, f.provider.uic.UI(), d.Chain().Root())
	d.RunAction(req)
	require.NoError(t, d.RunRender(req, resp))
	assert.Equal(t, "public, max-age=31536000, immutable", resp.Headers.Get("Cache-Control"))
}

func TestDriver_SerializesRequestsOfOneContext(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, nil)
	token := f.env().SessionToken()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := transport.NewMemoryResponse()
			_ = Process(f.cfg, transport.NewMemoryRequest(http.MethodGet, url.Values{
				transport.ParamSessionToken: {token},
			}, nil), resp)
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, f.env().Step())
	assert.Equal(t, 9, f.provider.released)
}

func TestDriver_ContextsSharingATreeFocusIndependently(t *testing.T) {
	f := newFixture(t)
	other := ui.NewSessionContext("s2", f.provider.uic.UI(), ui.NewEnvironment("app", "/app"))
	f.items.SetRows(other, []string{"1", "2", "3"})

	users := []struct {
		cfg   Config
		uic   *ui.SessionContext
		focus string
	}{
		{f.cfg, f.provider.uic, "name"},
		{Config{Provider: &provider{uic: other}}, other, "items-2-qty"},
	}
	params := make([]url.Values, len(users))
	for i, u := range users {
		require.NoError(t, Process(u.cfg, transport.NewMemoryRequest(http.MethodGet, nil, nil), transport.NewMemoryResponse()))
		params[i] = url.Values{
			transport.ParamSessionToken: {u.uic.Environment().SessionToken()},
			transport.ParamStep:         {strconv.Itoa(u.uic.Environment().Step())},
			transport.ParamFocus:        {u.focus},
		}
	}

	bodies := make([]string, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := transport.NewMemoryResponse()
			assert.NoError(t, Process(u.cfg, transport.NewMemoryRequest(http.MethodPost, params[i], nil), resp))
			bodies[i] = resp.Body.String()
		}()
	}
	wg.Wait()

	for i, u := range users {
		assert.Equal(t, u.focus, u.uic.Focused())
		assert.Contains(t, bodies[i], `focus="`+u.focus+`"`)
	}
	assert.NotContains(t, bodies[0], `focus="items-2-qty"`)
	assert.NotContains(t, bodies[1], `focus="name"`)
}

// countingRoot counts how often the phases reach the tree root.
type countingRoot struct {
	ui.Component
	serviced int
	prepared int
}

func (r *countingRoot) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	r.serviced++
	return r.Component.ServiceRequest(uic, req)
}

func (r *countingRoot) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	r.prepared++
	return r.Component.PreparePaint(uic, req)
}

func TestDriver_PhasesReachRootOnce(t *testing.T) {
	f := newFixture(t)
	root := &countingRoot{Component: f.provider.uic.UI()}
	uic := ui.NewSessionContext("s2", root, ui.NewEnvironment("app", "/app"))
	f.items.SetRows(uic, []string{"1", "2", "3"})
	f.provider.uic = uic

	f.do(http.MethodGet, nil)
	assert.Equal(t, 1, root.serviced)
	assert.Equal(t, 1, root.prepared)

	f.submit(url.Values{"name": {"Ann"}})
	assert.Equal(t, 2, root.serviced)
	assert.Equal(t, 2, root.prepared)

	resp := f.submit(url.Values{transport.ParamAjaxTrigger: {"items-2-inc"}})
	assert.Contains(t, resp.Body.String(), `id="items-2-qty"`)
	assert.Equal(t, 3, root.serviced, "a full-tree AJAX action services the root once")
	assert.Equal(t, 2, root.prepared, "an AJAX render prepares only the targets")
}

func TestDriver_Spans(t *testing.T) {
	f := newFixture(t)
	recorder := tracetest.NewSpanRecorder()
	f.cfg.Tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	f.do(http.MethodGet, nil)
	f.submit(url.Values{"explode": {"x"}})

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"pipeline.action", "pipeline.render", "pipeline.action", "pipeline.render"}, names)
	assert.Equal(t, "Error", recorder.Ended()[2].Status().Code.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disposed", StateDisposed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
