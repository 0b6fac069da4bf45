// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widgets

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

func newContext(root ui.Component) *ui.SessionContext {
	return ui.NewSessionContext("s1", root, ui.NewEnvironment("app", "/app"))
}

func post(params url.Values) *transport.MemoryRequest {
	return transport.NewMemoryRequest(http.MethodPost, params, nil)
}

func paint(t *testing.T, uic ui.Context, c ui.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.True(t, c.Paint(uic, ui.NewRenderContext(&buf, nil)).IsContinue())
	return buf.String()
}

func TestTextField(t *testing.T) {
	f := NewTextField("name", "Name")
	uic := newContext(f)

	assert.Empty(t, f.Value(uic))
	f.ServiceRequest(uic, post(url.Values{"name": {"Ann <A&B>"}, transport.ParamFocus: {"name"}}))
	assert.Equal(t, "Ann <A&B>", f.Value(uic))
	assert.Equal(t, "name", uic.Focused())
	assert.Equal(t, `<ui:textfield id="name" label="Name" value="Ann &lt;A&amp;B&gt;"/>`, paint(t, uic, f))

	f.ServiceRequest(uic, post(url.Values{"other": {"x"}}))
	assert.Equal(t, "Ann <A&B>", f.Value(uic), "an absent parameter keeps the value")
}

func TestTextField_HiddenAndDisabledIgnoreInput(t *testing.T) {
	f := NewTextField("vat", "")
	uic := newContext(f)

	uic.Model("vat").Disabled = true
	f.ServiceRequest(uic, post(url.Values{"vat": {"DE1"}}))
	assert.Empty(t, f.Value(uic))
	assert.Equal(t, `<ui:textfield id="vat" value="" disabled="true"/>`, paint(t, uic, f))

	uic.Model("vat").Hidden = true
	assert.Equal(t, `<ui:textfield id="vat" hidden="true"/>`, paint(t, uic, f))
}

func TestButton(t *testing.T) {
	pressed := 0
	b := NewButton("go", "Go", func(ui.Context, transport.Request) escape.Outcome {
		pressed++
		return escape.Proceed()
	})
	uic := newContext(b)

	b.ServiceRequest(uic, post(nil))
	assert.Zero(t, pressed)
	b.ServiceRequest(uic, post(url.Values{"go": {"Go"}}))
	assert.Equal(t, 1, pressed)

	uic.Model("go").Disabled = true
	b.ServiceRequest(uic, post(url.Values{"go": {"Go"}}))
	assert.Equal(t, 1, pressed)

	b.PreparePaint(uic, post(nil))
	assert.Empty(t, uic.AjaxOperations(), "a plain button registers nothing")
	assert.Equal(t, `<ui:button id="go" label="Go" disabled="true"/>`, paint(t, uic, b))
}

func TestButton_AjaxRegistration(t *testing.T) {
	b := NewButton("check", "Check", nil).WithAjaxTargets("greeting", "vat")
	uic := newContext(b)

	b.PreparePaint(uic, post(nil))
	op, ok := uic.AjaxOperation("check")
	require.True(t, ok)
	assert.Equal(t, []string{"greeting", "vat"}, op.Targets())
	assert.Equal(t, `<ui:button id="check" label="Check" ajax="true" targets="greeting vat"/>`, paint(t, uic, b))

	uic.Model("check").Hidden = true
	uic.ClearAjaxOperations()
	b.PreparePaint(uic, post(nil))
	assert.Empty(t, uic.AjaxOperations(), "hidden triggers do not register")
}

func TestButton_AjaxTriggerPressesButton(t *testing.T) {
	pressed := false
	b := NewButton("check", "Check", func(ui.Context, transport.Request) escape.Outcome {
		pressed = true
		return escape.Proceed()
	}).WithAjaxTargets("greeting")
	b.ServiceRequest(newContext(b), post(url.Values{transport.ParamAjaxTrigger: {"check"}}))
	assert.True(t, pressed)
}

func TestApplication_LocaleFromFirstRequest(t *testing.T) {
	app := NewApplication("app", "Orders")
	uic := newContext(app)

	app.ServiceRequest(uic, post(nil).SetHeader("Accept-Language", "de-DE,de;q=0.9"))
	assert.Equal(t, language.German, uic.Locale())

	app.ServiceRequest(uic, post(nil).SetHeader("Accept-Language", "en"))
	assert.Equal(t, language.German, uic.Locale(), "the locale is chosen once")

	assert.Equal(t, "Orders", app.Title())
	assert.Equal(t, `<ui:application id="app" title="Orders"></ui:application>`, paint(t, uic, app))
}

func TestContainer_HiddenSkipsChildren(t *testing.T) {
	field := NewTextField("name", "")
	box := NewContainer("form", field)
	uic := newContext(box)

	uic.Model("form").Hidden = true
	box.ServiceRequest(uic, post(url.Values{"name": {"x"}}))
	assert.Empty(t, field.Value(uic))
	assert.Equal(t, `<ui:panel id="form" hidden="true"/>`, paint(t, uic, box))

	uic.Model("form").Hidden = false
	box.ServiceRequest(uic, post(url.Values{"name": {"x"}}))
	assert.Equal(t, `<ui:panel id="form"><ui:textfield id="name" value="x"/></ui:panel>`, paint(t, uic, box))
}

func TestText(t *testing.T) {
	text := NewText("greeting", "default")
	a := newContext(text)
	b := newContext(text)

	text.SetText(a, "Hello Ann")
	assert.Equal(t, "Hello Ann", text.Text(a))
	assert.Equal(t, "default", text.Text(b), "state is per context")
	assert.Equal(t, `<ui:text id="greeting">Hello Ann</ui:text>`, paint(t, a, text))
}

func TestPoller(t *testing.T) {
	polled := 0
	clock := NewText("time", "")
	p := NewPoller("clock", 5*time.Second, func(uic ui.Context, _ transport.Request) escape.Outcome {
		polled++
		clock.SetText(uic, "tick")
		return escape.Proceed()
	}, clock)
	uic := newContext(p)

	p.ServiceRequest(uic, post(nil))
	assert.Zero(t, polled)
	p.ServiceRequest(uic, post(url.Values{transport.ParamAjaxTrigger: {"clock"}}))
	assert.Equal(t, 1, polled)

	p.PreparePaint(uic, post(nil))
	op, ok := uic.AjaxOperation("clock")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, op.PollDelay())
	assert.Equal(t, []string{"clock"}, op.Targets())
	assert.Equal(t, `<ui:poller id="clock" delay="5000"><ui:text id="time">tick</ui:text></ui:poller>`, paint(t, uic, p))
}

func TestRepeater_RowsKeepTheirOwnState(t *testing.T) {
	qty := NewTextField("qty", "")
	inc := NewButton("inc", "+1", nil).WithAjaxTargets("qty")
	r := NewRepeater("items", qty, inc)
	uic := newContext(r)

	assert.Empty(t, r.Rows(uic))
	r.SetRows(uic, []string{"1", "2"})
	r.ServiceRequest(uic, post(url.Values{"items-1-qty": {"3"}, "items-2-qty": {"7"}}))

	rows := r.Rows(uic)
	require.Len(t, rows, 2)
	assert.Equal(t, "3", qty.Value(rows[0].Context))
	assert.Equal(t, "7", qty.Value(rows[1].Context))
	assert.Empty(t, qty.Value(uic))

	r.PreparePaint(uic, post(nil))
	op, ok := uic.AjaxOperation("items-2-inc")
	require.True(t, ok)
	assert.Equal(t, []string{"items-2-qty"}, op.Targets(), "row buttons target their own row")

	var buf bytes.Buffer
	rc := ui.NewRenderContext(&buf, nil)
	require.True(t, r.Paint(uic, rc).IsContinue())
	assert.Contains(t, buf.String(), `<ui:row key="2"><ui:textfield id="items-2-qty" value="7"/>`)
	assert.Zero(t, rc.Stack().Depth())

	r.SetRows(uic, []string{"2"})
	rows = r.Rows(uic)
	require.Len(t, rows, 1)
	assert.Equal(t, "7", qty.Value(rows[0].Context))
	r.SetRows(uic, []string{"2", "1"})
	assert.Empty(t, qty.Value(r.Rows(uic)[1].Context), "dropped rows lose their state")
}

func TestContent(t *testing.T) {
	c := NewContent("export", "Export", "text/csv", ui.CachePrivate, func(ui.Context) ([]byte, error) {
		return []byte("a,b\n"), nil
	})
	uic := newContext(c)
	assert.Equal(t, "text/csv", c.ContentType())
	assert.Equal(t, ui.CachePrivate, c.CacheClass())

	assert.Equal(t, `<ui:content id="export" label="Export" type="text/csv" url="/app?wc_target=export"/>`, paint(t, uic, c))

	uic.PhaseScratch()[ui.ScratchTarget] = "export"
	assert.Equal(t, "a,b\n", paint(t, uic, c))

	failing := NewContent("broken", "", "text/plain", ui.CacheNone, func(ui.Context) ([]byte, error) {
		return nil, errors.New("no data")
	})
	uic.PhaseScratch()[ui.ScratchTarget] = "broken"
	out := failing.Paint(uic, ui.NewRenderContext(&bytes.Buffer{}, nil))
	assert.True(t, out.IsFailure())
}

func TestWindow(t *testing.T) {
	help := NewText("helptext", "Help")
	w := NewWindow("help", "Help", help)
	uic := newContext(w)

	assert.Same(t, help, w.WindowContent())
	assert.Equal(t, "/app", w.WindowURL(uic))
	assert.Empty(t, w.Children(), "window content is not a child")
	assert.Equal(t, `<ui:window id="help" title="Help" url="/app?wc_window=help"/>`, paint(t, uic, w))
}
