// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"maps"
	"slices"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Page shell elements.
const (
	ElementRoot        = ui.NamespacePrefix + ":root"
	ElementEnvironment = ui.NamespacePrefix + ":environment"
	ElementParam       = ui.NamespacePrefix + ":param"
)

// PageShell wraps a full-page render in the root element and writes the
// environment block: post URL, step, session token, focus and hidden
// parameters.
//
// It sits inside the step guard, so the step written is the one the next
// request must echo.
type PageShell struct {
	Base
}

// NewPageShell creates the page shell interceptor.
func NewPageShell() *PageShell { return &PageShell{} }

// Kind implements Interceptor.
func (p *PageShell) Kind() Kind { return KindPageShell }

// Paint writes the shell around the backing's output.
func (p *PageShell) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	rc.SetContentType(ContentTypeXML)
	return paintShell(uic, rc, func() escape.Outcome {
		return p.Base.Paint(uic, rc)
	})
}

// paintShell writes the prologue, root and environment, calls body, and
// closes the root. A required focus is consumed by the render.
func paintShell(uic ui.Context, rc *ui.RenderContext, body func() escape.Outcome) escape.Outcome {
	x := rc.XML()
	env := uic.Environment()

	x.Raw(ui.XMLPrologue)
	x.Open(ElementRoot).
		Attr("xmlns:"+ui.NamespacePrefix, ui.Namespace).
		Attr("lang", uic.Locale().String()).
		Close()

	x.Open(ElementEnvironment).
		OptAttr("appId", env.AppID).
		OptAttr("baseUrl", env.BaseURL).
		Attr("postUrl", env.PostURL).
		OptAttr("ajaxUrl", env.AjaxURL).
		IntAttr("step", env.Step()).
		OptAttr("token", env.SessionToken()).
		OptAttr("focus", uic.Focused()).
		BoolAttr("focusRequired", uic.IsFocusRequired()).
		Close()
	hidden := env.HiddenParameters()
	for _, name := range slices.Sorted(maps.Keys(hidden)) {
		x.Open(ElementParam).Attr("name", name).Attr("value", hidden[name]).SelfClose()
	}
	x.End(ElementEnvironment)

	if uic.IsFocusRequired() {
		uic.SetFocused(uic.Focused(), false)
	}

	out := body()
	x.End(ElementRoot)
	return out
}

var _ Interceptor = (*PageShell)(nil)
