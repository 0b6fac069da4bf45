// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widgets

import (
	"fmt"
	"net/url"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// contentURL returns the post URL with a single extra parameter.
func contentURL(uic ui.Context, param, value string) string {
	return uic.Environment().PostURL + "?" + url.Values{param: {value}}.Encode()
}

// =============================================================================
// Content
// =============================================================================

// ContentFunc produces the body of a targeted content request.
type ContentFunc func(uic ui.Context) ([]byte, error)

// Content is a targetable component such as a download or a generated
// image. In a page it paints a reference carrying its URL; when targeted
// by a content request it paints the bytes returned by its ContentFunc.
type Content struct {
	ui.Base
	label       string
	contentType string
	cache       ui.CacheClass
	body        ContentFunc
}

// NewContent creates targetable content.
func NewContent(id, label, contentType string, cache ui.CacheClass, body ContentFunc) *Content {
	return &Content{
		Base:        ui.NewBase(id),
		label:       label,
		contentType: contentType,
		cache:       cache,
		body:        body,
	}
}

// ContentType implements ui.Targetable.
func (c *Content) ContentType() string { return c.contentType }

// CacheClass implements ui.Targetable.
func (c *Content) CacheClass() ui.CacheClass { return c.cache }

// Paint writes the body when targeted, otherwise a reference.
func (c *Content) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	rid := ui.RenderedID(uic, c)
	if uic.PhaseScratch()[ui.ScratchTarget] == rid {
		body, err := c.body(uic)
		if err != nil {
			return escape.Fail(fmt.Errorf("content %s: %w", rid, err))
		}
		rc.XML().Raw(string(body))
		return escape.Proceed()
	}
	rc.XML().Open(ElementContent).
		Attr("id", rid).
		OptAttr("label", c.label).
		Attr("type", c.contentType).
		Attr("url", contentURL(uic, transport.ParamTarget, rid)).
		SelfClose()
	return escape.Proceed()
}

// =============================================================================
// Window
// =============================================================================

// Window opens its content in a secondary browser window. The content is
// not a child: it is processed only by requests addressed to the window.
type Window struct {
	ui.Base
	title   string
	content ui.Component
}

// NewWindow creates a window.
func NewWindow(id, title string, content ui.Component) *Window {
	return &Window{Base: ui.NewBase(id), title: title, content: content}
}

// WindowContent implements ui.Window.
func (w *Window) WindowContent() ui.Component { return w.content }

// WindowURL implements ui.Window.
func (w *Window) WindowURL(uic ui.Context) string {
	return uic.Environment().PostURL
}

// Paint writes a link opening the window.
func (w *Window) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	rid := ui.RenderedID(uic, w)
	rc.XML().Open(ElementWindow).
		Attr("id", rid).
		OptAttr("title", w.title).
		Attr("url", contentURL(uic, transport.ParamWindow, rid)).
		SelfClose()
	return escape.Proceed()
}

var (
	_ ui.Targetable = (*Content)(nil)
	_ ui.Window     = (*Window)(nil)
)
