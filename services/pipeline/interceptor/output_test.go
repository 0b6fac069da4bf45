// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

func TestResponseCache(t *testing.T) {
	root := newSpy("root")
	rc := NewResponseCache(ui.CacheNone)
	NewChain(rc).Attach(root)
	uic := newContext(root)

	_, resp, _ := paint(uic, rc)
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Headers.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Headers.Get("Pragma"))

	uic.PhaseScratch()[ScratchCacheClass] = ui.CacheLong
	_, resp, _ = paint(uic, rc)
	assert.Equal(t, "public, max-age=31536000, immutable", resp.Headers.Get("Cache-Control"))
	assert.Empty(t, resp.Headers.Get("Pragma"))

	assert.Equal(t, "private, max-age=300", CacheHeaders(ui.CachePrivate)["Cache-Control"])
}

func TestPageShell(t *testing.T) {
	root := newSpy("root")
	shell := NewPageShell()
	NewChain(shell).Attach(root)
	uic := newContext(root)
	env := uic.Environment()
	env.RestoreSessionToken("tok")
	env.RestoreStep(3)
	env.SetHiddenParameter("b", "2")
	env.SetHiddenParameter("a", "1&")
	uic.SetFocused("name", true)

	body, resp, out := paint(uic, shell)
	require.True(t, out.IsContinue())
	assert.Equal(t, ContentTypeXML, resp.Headers.Get("Content-Type"))
	assert.Equal(t,
		ui.XMLPrologue+
			`<ui:root xmlns:ui="`+ui.Namespace+`" lang="en">`+
			`<ui:environment appId="app" baseUrl="/app" postUrl="/app" ajaxUrl="/app" step="3" token="tok" focus="name" focusRequired="true">`+
			`<ui:param name="a" value="1&amp;"/><ui:param name="b" value="2"/>`+
			`</ui:environment>`+
			`<ui:spy id="root"></ui:spy>`+
			`</ui:root>`,
		body)
	assert.False(t, uic.IsFocusRequired(), "a required focus is consumed by the render")
	assert.Equal(t, "name", uic.Focused())
}

func TestWhitespace(t *testing.T) {
	root := newSpy("root", newSpy("a"), newSpy("b"))
	root.body = "\n  "
	ws := NewWhitespace()
	NewChain(ws).Attach(root)

	body, _, _ := paint(newContext(root), ws)
	assert.Equal(t, `<ui:spy id="root"><ui:spy id="a"></ui:spy><ui:spy id="b"></ui:spy></ui:spy>`, body)

	root.body = " "
	body, _, _ = paint(newContext(root), ws)
	assert.Equal(t, `<ui:spy id="root"> <ui:spy id="a"></ui:spy><ui:spy id="b"></ui:spy></ui:spy>`, body,
		"a space between inline elements is kept")
}

func TestValidation_PassesOutputThrough(t *testing.T) {
	root := newSpy("root")
	v := NewValidation(nil)
	NewChain(v, NewPageShell()).Attach(root)

	body, _, out := paint(newContext(root), v)
	assert.True(t, out.IsContinue())
	assert.True(t, strings.HasSuffix(body, "</ui:root>"))
}

func TestCheckWellFormed(t *testing.T) {
	assert.NoError(t, CheckWellFormed([]byte(`<a><b/></a>`)))
	assert.Error(t, CheckWellFormed([]byte(`<a><b></a>`)))
}

func TestDebug(t *testing.T) {
	root := newSpy("root", newSpy("child"))
	d := NewDebug()
	NewChain(d).Attach(root)

	body, _, _ := paint(newContext(root), d)
	assert.Contains(t, body, `<ui:debug><ui:debugInfo for="root" type="*interceptor.spy"/><ui:debugInfo for="child" type="*interceptor.spy"/></ui:debug>`)
}

type upperEngine struct{ err error }

func (e upperEngine) Render(_ context.Context, markup []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []byte(strings.ToUpper(string(markup))), nil
}

func TestTemplate(t *testing.T) {
	root := newSpy("root")
	tmpl := NewTemplate(upperEngine{})
	NewChain(tmpl).Attach(root)
	uic := newContext(root)

	tmpl.PreparePaint(uic, get(nil))
	body, _, _ := paint(uic, tmpl)
	assert.Equal(t, `<UI:SPY ID="ROOT"></UI:SPY>`, body)

	tmpl = NewTemplate(upperEngine{err: errors.New("bad template")})
	NewChain(tmpl).Attach(root)
	_, _, out := paint(uic, tmpl)
	assert.True(t, out.IsFailure())
}

func TestBuild_TemplateEngineAddsTemplate(t *testing.T) {
	opts := Options{Hooks: extensions.DefaultOptions().WithTemplateEngine(upperEngine{})}
	_, ok := Build(0, opts).Find(KindTemplate)
	assert.True(t, ok)
	_, ok = Build(0, Options{}).Find(KindTemplate)
	assert.False(t, ok)
}

func TestSubordinate(t *testing.T) {
	root := newSpy("root")
	var applied []string
	phase := "action"
	engine := ruleFunc(func(_ context.Context, uic ui.Context, r ui.Component) error {
		applied = append(applied, phase)
		if phase == "fail" {
			return errors.New("rule broke")
		}
		return nil
	})
	sub := NewSubordinate(engine)
	NewChain(sub).Attach(root)
	uic := newContext(root)

	require.True(t, sub.ServiceRequest(uic, post(nil)).IsContinue())
	phase = "prepare"
	require.True(t, sub.PreparePaint(uic, post(nil)).IsContinue())
	assert.Equal(t, []string{"action", "prepare"}, applied)
	assert.Equal(t, []string{"action:root", "prepare:root"}, root.calls)

	phase = "fail"
	assert.True(t, sub.ServiceRequest(uic, post(nil)).IsFailure())
}
