// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widgets

import (
	"slices"
	"time"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// Poller
// =============================================================================

// Poller repaints itself on a timer. The client fires its AJAX trigger
// after the delay; the action phase then services only the poller.
type Poller struct {
	ui.Base
	delay  time.Duration
	onPoll ActionFunc
}

// NewPoller creates a poller around children. onPoll runs on every poll
// and may be nil.
func NewPoller(id string, delay time.Duration, onPoll ActionFunc, children ...ui.Component) *Poller {
	return &Poller{Base: ui.NewBase(id, children...), delay: delay, onPoll: onPoll}
}

// PollDelay implements ui.AjaxPoller.
func (p *Poller) PollDelay() time.Duration { return p.delay }

// ServiceRequest runs onPoll when the poller fired, else services the
// children.
func (p *Poller) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if req.Parameter(transport.ParamAjaxTrigger) == ui.RenderedID(uic, p) {
		if p.onPoll == nil {
			return escape.Proceed()
		}
		return p.onPoll(uic, req)
	}
	return p.Base.ServiceRequest(uic, req)
}

// PreparePaint registers the self-targeting poll operation.
func (p *Poller) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	rid := ui.RenderedID(uic, p)
	uic.RegisterAjaxOperation(ui.NewAjaxOperation(rid).WithPollDelay(p.delay))
	return p.Base.PreparePaint(uic, req)
}

// Paint writes the poller element around the children.
func (p *Poller) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	x := rc.XML()
	x.Open(ElementPoller).
		Attr("id", ui.RenderedID(uic, p)).
		IntAttr("delay", int(p.delay/time.Millisecond)).
		Close()
	out := p.Base.Paint(uic, rc)
	x.End(ElementPoller)
	return out
}

// =============================================================================
// Repeater
// =============================================================================

const (
	modelRows      = "rows"
	modelRowModels = "row_models"
)

// Repeater paints its children once per row. Each row has its own
// SubContext: components in it have rendered ids prefixed with the row and
// keep their state in the row's models, which survive between requests.
type Repeater struct {
	ui.Base
}

// NewRepeater creates a repeater whose children form the row template.
func NewRepeater(id string, children ...ui.Component) *Repeater {
	return &Repeater{Base: ui.NewBase(id, children...)}
}

// SetRows sets the row keys for the user of uic. Models of rows that are no
// longer present are dropped.
func (r *Repeater) SetRows(uic ui.Context, keys []string) {
	m := uic.Model(r.ID())
	m.SetValue(modelRows, slices.Clone(keys))
	models := r.rowModels(uic)
	for key := range models {
		if !slices.Contains(keys, key) {
			delete(models, key)
		}
	}
}

// RowKeys returns the row keys for the user of uic.
func (r *Repeater) RowKeys(uic ui.Context) []string {
	if !uic.HasModel(r.ID()) {
		return nil
	}
	keys, _ := uic.Model(r.ID()).Value(modelRows).([]string)
	return slices.Clone(keys)
}

func (r *Repeater) rowModels(uic ui.Context) map[string]ui.RowModels {
	m := uic.Model(r.ID())
	models, ok := m.Value(modelRowModels).(map[string]ui.RowModels)
	if !ok {
		models = map[string]ui.RowModels{}
		m.SetValue(modelRowModels, models)
	}
	return models
}

// Rows implements ui.ScopedContainer.
func (r *Repeater) Rows(uic ui.Context) []ui.Row {
	keys := r.RowKeys(uic)
	if len(keys) == 0 {
		return nil
	}
	models := r.rowModels(uic)
	rows := make([]ui.Row, 0, len(keys))
	for _, key := range keys {
		rm, ok := models[key]
		if !ok {
			rm = ui.RowModels{}
			models[key] = rm
		}
		rows = append(rows, ui.Row{
			Key:     key,
			Context: ui.NewSubContext(uic, ui.RowPrefix(r, key), rm),
		})
	}
	return rows
}

// ServiceRequest services every row.
func (r *Repeater) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	for _, row := range r.Rows(uic) {
		for _, child := range r.Children() {
			if out := child.ServiceRequest(row.Context, req); !out.IsContinue() {
				return out
			}
		}
	}
	return escape.Proceed()
}

// PreparePaint prepares every row.
func (r *Repeater) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	for _, row := range r.Rows(uic) {
		for _, child := range r.Children() {
			if out := child.PreparePaint(row.Context, req); !out.IsContinue() {
				return out
			}
		}
	}
	return escape.Proceed()
}

// Paint writes one row element per row, each painted with the row's
// context current on the stack.
func (r *Repeater) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	x := rc.XML()
	x.Open(ElementRepeater).Attr("id", ui.RenderedID(uic, r)).Close()
	for _, row := range r.Rows(uic) {
		x.Open(ElementRow).Attr("key", row.Key).Close()
		out := rc.Stack().With(row.Context, func() escape.Outcome {
			return ui.PaintChildren(row.Context, rc, r.Children())
		})
		x.End(ElementRow)
		if !out.IsContinue() {
			x.End(ElementRepeater)
			return out
		}
	}
	x.End(ElementRepeater)
	return escape.Proceed()
}

var (
	_ ui.AjaxPoller      = (*Poller)(nil)
	_ ui.ScopedContainer = (*Repeater)(nil)
)
