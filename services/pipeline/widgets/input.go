// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widgets

import (
	"strings"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// TextField
// =============================================================================

// TextField accepts a string. The submitted parameter is named by the
// field's rendered id.
type TextField struct {
	ui.Base
	label string
}

// NewTextField creates a text field.
func NewTextField(id, label string) *TextField {
	return &TextField{Base: ui.NewBase(id), label: label}
}

// Value returns the field's value for the user of uic.
func (f *TextField) Value(uic ui.Context) string {
	if !uic.HasModel(f.ID()) {
		return ""
	}
	return uic.Model(f.ID()).String(ui.ModelValue)
}

// SetValue sets the field's value for the user of uic.
func (f *TextField) SetValue(uic ui.Context, value string) {
	uic.Model(f.ID()).SetValue(ui.ModelValue, value)
}

// ServiceRequest stores the submitted value. Hidden and disabled fields
// ignore input.
func (f *TextField) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if hidden, disabled := flags(uic, f); hidden || disabled {
		return escape.Proceed()
	}
	rid := ui.RenderedID(uic, f)
	if req.HasParameter(rid) {
		f.SetValue(uic, req.Parameter(rid))
	}
	if req.Parameter(transport.ParamFocus) == rid {
		uic.SetFocused(rid, false)
	}
	return escape.Proceed()
}

// Paint writes the field element.
func (f *TextField) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	hidden, disabled := flags(uic, f)
	if hidden {
		return paintHidden(uic, rc, ElementTextField, f)
	}
	rc.XML().Open(ElementTextField).
		Attr("id", ui.RenderedID(uic, f)).
		OptAttr("label", f.label).
		Attr("value", f.Value(uic)).
		BoolAttr("disabled", disabled).
		SelfClose()
	return escape.Proceed()
}

// =============================================================================
// Button
// =============================================================================

// Button runs an action when pressed. With AJAX targets it registers an
// operation on every render so pressing it repaints only those targets.
//
// Target and container ids are relative to the button's naming scope: a
// button inside a repeated row targets components of the same row.
type Button struct {
	ui.Base
	label     string
	action    ActionFunc
	targets   []string
	container string
}

// NewButton creates a button. action may be nil.
func NewButton(id, label string, action ActionFunc) *Button {
	return &Button{Base: ui.NewBase(id), label: label, action: action}
}

// WithAjaxTargets makes the button an AJAX trigger repainting ids.
func (b *Button) WithAjaxTargets(ids ...string) *Button {
	b.targets = append(b.targets, ids...)
	return b
}

// WithAjaxContainer makes the button an AJAX trigger repainting the
// content of the container id. Only the button is serviced.
func (b *Button) WithAjaxContainer(id string) *Button {
	b.container = id
	return b
}

// IsAjax reports whether the button is an AJAX trigger.
func (b *Button) IsAjax() bool {
	return len(b.targets) > 0 || b.container != ""
}

func (b *Button) pressed(uic ui.Context, req transport.Request) bool {
	rid := ui.RenderedID(uic, b)
	return req.Parameter(transport.ParamAjaxTrigger) == rid || req.HasParameter(rid)
}

// ServiceRequest runs the action if the button was pressed.
func (b *Button) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if hidden, disabled := flags(uic, b); hidden || disabled {
		return escape.Proceed()
	}
	if b.action == nil || !b.pressed(uic, req) {
		return escape.Proceed()
	}
	return b.action(uic, req)
}

// PreparePaint registers the AJAX operation.
func (b *Button) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	if hidden, _ := flags(uic, b); hidden || !b.IsAjax() {
		return escape.Proceed()
	}
	prefix := uic.IDPrefix()
	targets := make([]string, len(b.targets))
	for i, t := range b.targets {
		targets[i] = prefix + t
	}
	op := ui.NewAjaxOperation(ui.RenderedID(uic, b), targets...)
	if b.container != "" {
		op = op.WithContainer(prefix + b.container)
	}
	uic.RegisterAjaxOperation(op)
	return escape.Proceed()
}

// Paint writes the button element.
func (b *Button) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	hidden, disabled := flags(uic, b)
	if hidden {
		return paintHidden(uic, rc, ElementButton, b)
	}
	x := rc.XML()
	x.Open(ElementButton).
		Attr("id", ui.RenderedID(uic, b)).
		Attr("label", b.label).
		BoolAttr("disabled", disabled).
		BoolAttr("ajax", b.IsAjax())
	if op, ok := uic.AjaxOperation(ui.RenderedID(uic, b)); ok {
		if c := op.ContainerID(); c != "" {
			x.Attr("container", c)
		} else {
			x.Attr("targets", strings.Join(op.Targets(), " "))
		}
	}
	x.SelfClose()
	return escape.Proceed()
}

var (
	_ ui.Component = (*TextField)(nil)
	_ ui.Component = (*Button)(nil)
)
