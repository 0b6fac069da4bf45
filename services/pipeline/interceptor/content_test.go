// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

func runContent(t *testing.T, root ui.Component, params url.Values) (*ui.SessionContext, string, *transport.MemoryResponse, escape.Outcome) {
	t.Helper()
	uic := newContext(root)
	chain := NewChain(NewResponseCache(ui.CacheNone), NewWindow(), NewTargetable()).Attach(root)
	req := get(params)
	if out := chain.ServiceRequest(uic, req); !out.IsContinue() {
		return uic, "", nil, out
	}
	uic.ClearPhaseScratch()
	require.True(t, chain.PreparePaint(uic, req).IsContinue())
	body, resp, out := paint(uic, chain)
	return uic, body, resp, out
}

func TestTargetable_PaintsOnlyTheTarget(t *testing.T) {
	export := newSpy("export")
	export.contentType = "text/csv"
	export.cache = ui.CachePrivate
	export.body = "a,b"
	root := newSpy("root", newSpy("name"), export)

	uic, body, resp, out := runContent(t, root, url.Values{transport.ParamTarget: {"export"}})
	require.True(t, out.IsContinue())
	assert.Equal(t, `<ui:spy id="export">a,b</ui:spy>`, body)
	assert.Equal(t, "text/csv", resp.Headers.Get("Content-Type"))
	assert.Equal(t, "private, max-age=300", resp.Headers.Get("Cache-Control"))
	assert.Equal(t, "export", uic.PhaseScratch()[ui.ScratchTarget])
	assert.Empty(t, root.calls)
	assert.Equal(t, []string{"action:export", "prepare:export", "paint:export"}, export.calls)
}

func TestTargetable_Errors(t *testing.T) {
	root := newSpy("root", newLabelOnly("name"))

	_, _, _, out := runContent(t, root, url.Values{transport.ParamTarget: {"missing"}})
	assert.ErrorIs(t, out.Err, escape.ErrConfiguration)

	_, _, _, out = runContent(t, root, url.Values{transport.ParamTarget: {"name"}})
	assert.ErrorIs(t, out.Err, escape.ErrConfiguration)
	assert.Contains(t, out.Err.Error(), "not targetable")
}

func TestWindow_RendersContentUnderDelegate(t *testing.T) {
	inner := newSpy("helptext")
	win := &window{spy: newSpy("help"), content: inner}
	root := newSpy("root", win)

	uic, body, resp, out := runContent(t, root, url.Values{transport.ParamWindow: {"help"}})
	require.True(t, out.IsContinue())
	assert.Equal(t, ContentTypeXML, resp.Headers.Get("Content-Type"))
	assert.Contains(t, body, `postUrl="/app?wc_window=help"`)
	assert.Contains(t, body, `<ui:param name="wc_window" value="help"/>`)
	assert.Contains(t, body, `<ui:spy id="helptext"></ui:spy>`)
	assert.Equal(t, []string{"action:helptext", "prepare:helptext", "paint:helptext"}, inner.calls)
	assert.Empty(t, root.calls)

	assert.Equal(t, "/app", uic.Environment().PostURL, "the user's environment is untouched")
	assert.Empty(t, uic.Environment().HiddenParameters())
}

func TestWindow_NotAWindow(t *testing.T) {
	root := newSpy("root", newSpy("plain"))
	_, _, _, out := runContent(t, root, url.Values{transport.ParamWindow: {"plain"}})
	assert.ErrorIs(t, out.Err, escape.ErrConfiguration)
}

func TestContent_PassThroughWithoutParameters(t *testing.T) {
	root := newSpy("root")
	_, body, _, out := runContent(t, root, nil)
	require.True(t, out.IsContinue())
	assert.Equal(t, `<ui:spy id="root"></ui:spy>`, body)
}

// labelOnly is a component that is neither targetable nor a window.
type labelOnly struct{ ui.Base }

func newLabelOnly(id string) *labelOnly { return &labelOnly{Base: ui.NewBase(id)} }
