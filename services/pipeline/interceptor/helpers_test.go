// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// spy is a component that records its phase calls and returns the
// outcomes it is told to.
type spy struct {
	ui.Base
	calls []string

	action  escape.Outcome
	prepare escape.Outcome
	paint   escape.Outcome
	body    string
	panicOn string

	contentType string
	cache       ui.CacheClass
	poll        time.Duration
}

func newSpy(id string, children ...ui.Component) *spy {
	return &spy{Base: ui.NewBase(id, children...)}
}

func (p *spy) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	p.calls = append(p.calls, "action:"+ui.RenderedID(uic, p))
	if p.panicOn == "action" {
		panic("action exploded")
	}
	if !p.action.IsContinue() {
		return p.action
	}
	return p.Base.ServiceRequest(uic, req)
}

func (p *spy) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	p.calls = append(p.calls, "prepare:"+ui.RenderedID(uic, p))
	if p.panicOn == "prepare" {
		panic("prepare exploded")
	}
	if !p.prepare.IsContinue() {
		return p.prepare
	}
	return p.Base.PreparePaint(uic, req)
}

func (p *spy) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	p.calls = append(p.calls, "paint:"+ui.RenderedID(uic, p))
	x := rc.XML()
	x.Open("ui:spy").Attr("id", ui.RenderedID(uic, p)).Close().Text(p.body)
	if p.panicOn == "paint" {
		panic("paint exploded")
	}
	if !p.paint.IsContinue() {
		return p.paint
	}
	out := p.Base.Paint(uic, rc)
	x.End("ui:spy")
	return out
}

func (p *spy) ContentType() string       { return p.contentType }
func (p *spy) CacheClass() ui.CacheClass { return p.cache }
func (p *spy) PollDelay() time.Duration  { return p.poll }

// window is a spy that renders as a secondary window.
type window struct {
	*spy
	content ui.Component
}

func (w *window) WindowContent() ui.Component { return w.content }

func (w *window) WindowURL(uic ui.Context) string {
	return uic.Environment().PostURL + "?" + transport.ParamWindow + "=" + ui.RenderedID(uic, w)
}

// rows repeats its children for each key.
type rows struct {
	*spy
	keys   []string
	models map[string]ui.RowModels
}

func (r *rows) Rows(uic ui.Context) []ui.Row {
	out := make([]ui.Row, 0, len(r.keys))
	for _, key := range r.keys {
		if r.models[key] == nil {
			r.models[key] = ui.RowModels{}
		}
		out = append(out, ui.Row{Key: key, Context: ui.NewSubContext(uic, ui.RowPrefix(r, key), r.models[key])})
	}
	return out
}

func newContext(root ui.Component) *ui.SessionContext {
	return ui.NewSessionContext("s1", root, ui.NewEnvironment("app", "/app"))
}

func post(params url.Values) *transport.MemoryRequest {
	return transport.NewMemoryRequest(http.MethodPost, params, nil)
}

func get(params url.Values) *transport.MemoryRequest {
	return transport.NewMemoryRequest(http.MethodGet, params, nil)
}

func paint(uic ui.Context, p ui.Phased) (string, *transport.MemoryResponse, escape.Outcome) {
	var buf bytes.Buffer
	resp := transport.NewMemoryResponse()
	out := p.Paint(uic, ui.NewRenderContext(&buf, nil).WithResponse(resp))
	return buf.String(), resp, out
}

// ruleFunc adapts a function to RuleEngine.
type ruleFunc func(ctx context.Context, uic ui.Context, root ui.Component) error

func (f ruleFunc) Apply(ctx context.Context, uic ui.Context, root ui.Component) error {
	if f == nil {
		return nil
	}
	return f(ctx, uic, root)
}

// phasedFunc is a ui.Phased whose Paint is a function.
type phasedFunc func(uic ui.Context, rc *ui.RenderContext) escape.Outcome

func (f phasedFunc) ServiceRequest(ui.Context, transport.Request) escape.Outcome { return escape.Proceed() }
func (f phasedFunc) PreparePaint(ui.Context, transport.Request) escape.Outcome   { return escape.Proceed() }
func (f phasedFunc) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	return f(uic, rc)
}
