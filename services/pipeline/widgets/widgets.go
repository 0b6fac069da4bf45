// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package widgets provides a small set of components for building
// applications on the pipeline: containers, text, inputs, buttons with AJAX
// targets, pollers, repeaters, targetable content and secondary windows.
//
// Widgets keep no per-user state in their fields. Everything that changes
// at runtime lives in the component's Model in the user context, so one
// tree serves every user.
package widgets

import (
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/i18n"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Element names.
const (
	ElementApplication = ui.NamespacePrefix + ":application"
	ElementPanel       = ui.NamespacePrefix + ":panel"
	ElementText        = ui.NamespacePrefix + ":text"
	ElementTextField   = ui.NamespacePrefix + ":textfield"
	ElementButton      = ui.NamespacePrefix + ":button"
	ElementPoller      = ui.NamespacePrefix + ":poller"
	ElementRepeater    = ui.NamespacePrefix + ":repeater"
	ElementRow         = ui.NamespacePrefix + ":row"
	ElementContent     = ui.NamespacePrefix + ":content"
	ElementWindow      = ui.NamespacePrefix + ":window"
)

// ActionFunc runs when a button is pressed or a poller fires.
type ActionFunc func(uic ui.Context, req transport.Request) escape.Outcome

// flags returns the hidden and disabled state of c under uic.
func flags(uic ui.Context, c ui.Component) (hidden, disabled bool) {
	if !uic.HasModel(c.ID()) {
		return false, false
	}
	m := uic.Model(c.ID())
	return m.Hidden, m.Disabled
}

// paintHidden writes the placeholder of a hidden component so AJAX
// replacements still find its element.
func paintHidden(uic ui.Context, rc *ui.RenderContext, element string, c ui.Component) escape.Outcome {
	rc.XML().Open(element).Attr("id", ui.RenderedID(uic, c)).BoolAttr("hidden", true).SelfClose()
	return escape.Proceed()
}

// =============================================================================
// Application
// =============================================================================

// Application is the root of a tree. It picks the user's locale from the
// Accept-Language header of the first request that carries one.
type Application struct {
	ui.Base
	title string
}

// NewApplication creates a root component.
func NewApplication(id, title string, children ...ui.Component) *Application {
	return &Application{Base: ui.NewBase(id, children...), title: title}
}

// Title returns the application title.
func (a *Application) Title() string { return a.title }

// ServiceRequest sets the locale once and services the children.
func (a *Application) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	m := uic.Model(a.ID())
	if lang := req.Header("Accept-Language"); lang != "" && m.Value("locale_set") == nil {
		uic.SetLocale(i18n.Match(lang))
		m.SetValue("locale_set", true)
	}
	return a.Base.ServiceRequest(uic, req)
}

// Paint writes the application element around the children.
func (a *Application) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	x := rc.XML()
	x.Open(ElementApplication).Attr("id", ui.RenderedID(uic, a)).OptAttr("title", a.title).Close()
	out := a.Base.Paint(uic, rc)
	x.End(ElementApplication)
	return out
}

// =============================================================================
// Container
// =============================================================================

// Container groups children in a panel element.
type Container struct {
	ui.Base
}

// NewContainer creates a panel.
func NewContainer(id string, children ...ui.Component) *Container {
	return &Container{Base: ui.NewBase(id, children...)}
}

// ServiceRequest skips hidden and disabled panels.
func (c *Container) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if hidden, disabled := flags(uic, c); hidden || disabled {
		return escape.Proceed()
	}
	return c.Base.ServiceRequest(uic, req)
}

// Paint writes the panel element around the children.
func (c *Container) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	hidden, disabled := flags(uic, c)
	if hidden {
		return paintHidden(uic, rc, ElementPanel, c)
	}
	x := rc.XML()
	x.Open(ElementPanel).Attr("id", ui.RenderedID(uic, c)).BoolAttr("disabled", disabled).Close()
	out := c.Base.Paint(uic, rc)
	x.End(ElementPanel)
	return out
}

// =============================================================================
// Text
// =============================================================================

// Text displays a string, either fixed at construction or set per user.
type Text struct {
	ui.Base
	text string
}

// NewText creates a text with an initial value.
func NewText(id, text string) *Text {
	return &Text{Base: ui.NewBase(id), text: text}
}

// Text returns the text shown to the user of uic.
func (t *Text) Text(uic ui.Context) string {
	if uic.HasModel(t.ID()) {
		if v, ok := uic.Model(t.ID()).Value(ui.ModelValue).(string); ok {
			return v
		}
	}
	return t.text
}

// SetText changes the text for the user of uic.
func (t *Text) SetText(uic ui.Context, text string) {
	uic.Model(t.ID()).SetValue(ui.ModelValue, text)
}

// Paint writes the text element.
func (t *Text) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	if hidden, _ := flags(uic, t); hidden {
		return paintHidden(uic, rc, ElementText, t)
	}
	x := rc.XML()
	x.Open(ElementText).Attr("id", ui.RenderedID(uic, t)).Close()
	x.Text(t.Text(uic))
	x.End(ElementText)
	return escape.Proceed()
}

var (
	_ ui.Component = (*Application)(nil)
	_ ui.Component = (*Container)(nil)
	_ ui.Component = (*Text)(nil)
)
