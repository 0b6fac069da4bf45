// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"fmt"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// ScratchCacheClass is the phase scratch key under which the targeted
// component's cache class is published for ResponseCache.
const ScratchCacheClass = "fwk.cache_class"

// =============================================================================
// Targetable
// =============================================================================

// Targetable routes a content request to the component named by the target
// parameter and paints only that component, in its own context, with its
// own content type. Requests without the parameter pass through.
type Targetable struct {
	Base

	target ui.ComponentWithContext
	comp   ui.Targetable
}

// NewTargetable creates the content routing interceptor.
func NewTargetable() *Targetable { return &Targetable{} }

// Kind implements Interceptor.
func (t *Targetable) Kind() Kind { return KindTargetable }

func (t *Targetable) resolve(uic ui.Context, req transport.Request) (bool, error) {
	if t.comp != nil {
		return true, nil
	}
	id := req.Parameter(transport.ParamTarget)
	if id == "" {
		return false, nil
	}
	found, ok := ui.FindByID(uic, uic.UI(), id)
	if !ok {
		return false, fmt.Errorf("%w: no component with id %q", escape.ErrConfiguration, id)
	}
	comp, ok := found.Component.(ui.Targetable)
	if !ok {
		return false, fmt.Errorf("%w: component %q is not targetable", escape.ErrConfiguration, id)
	}
	t.target, t.comp = found, comp
	return true, nil
}

// ServiceRequest services only the target.
func (t *Targetable) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	targeted, err := t.resolve(uic, req)
	if err != nil {
		return escape.Fail(err)
	}
	if !targeted {
		return t.Base.ServiceRequest(uic, req)
	}
	return t.comp.ServiceRequest(t.target.Context, req)
}

// PreparePaint prepares only the target and publishes its cache class.
func (t *Targetable) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	targeted, err := t.resolve(uic, req)
	if err != nil {
		return escape.Fail(err)
	}
	if !targeted {
		return t.Base.PreparePaint(uic, req)
	}
	uic.PhaseScratch()[ScratchCacheClass] = t.comp.CacheClass()
	uic.PhaseScratch()[ui.ScratchTarget] = ui.RenderedID(t.target.Context, t.comp)
	return t.comp.PreparePaint(t.target.Context, req)
}

// Paint paints only the target.
func (t *Targetable) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	if t.comp == nil {
		return t.Base.Paint(uic, rc)
	}
	rc.SetContentType(t.comp.ContentType())
	return rc.Stack().With(t.target.Context, func() escape.Outcome {
		return t.comp.Paint(t.target.Context, rc)
	})
}

// =============================================================================
// Window
// =============================================================================

// Window renders a secondary window named by the window parameter as a
// full page of its own. The window's content is processed under a Delegate
// whose environment posts back to the window URL; the user's context is
// not modified. Requests without the parameter pass through.
type Window struct {
	Base

	target ui.ComponentWithContext
	win    ui.Window
}

// NewWindow creates the window interceptor.
func NewWindow() *Window { return &Window{} }

// Kind implements Interceptor.
func (w *Window) Kind() Kind { return KindWindow }

func (w *Window) resolve(uic ui.Context, req transport.Request) (bool, error) {
	if w.win != nil {
		return true, nil
	}
	id := req.Parameter(transport.ParamWindow)
	if id == "" {
		return false, nil
	}
	found, ok := ui.FindByID(uic, uic.UI(), id)
	if !ok {
		return false, fmt.Errorf("%w: no window with id %q", escape.ErrConfiguration, id)
	}
	win, ok := found.Component.(ui.Window)
	if !ok {
		return false, fmt.Errorf("%w: component %q is not a window", escape.ErrConfiguration, id)
	}
	w.target, w.win = found, win
	return true, nil
}

// delegate is built per phase so the environment reflects the current step.
func (w *Window) delegate() *ui.Delegate {
	backing := w.target.Context
	env := backing.Environment().Clone()
	env.PostURL = w.win.WindowURL(backing)
	env.SetHiddenParameter(transport.ParamWindow, backing.IDPrefix()+w.win.ID())
	return ui.NewDelegate(backing).WithEnvironment(env).WithUI(w.win.WindowContent())
}

// ServiceRequest services the window content.
func (w *Window) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	windowed, err := w.resolve(uic, req)
	if err != nil {
		return escape.Fail(err)
	}
	if !windowed {
		return w.Base.ServiceRequest(uic, req)
	}
	d := w.delegate()
	return d.UI().ServiceRequest(d, req)
}

// PreparePaint prepares the window content.
func (w *Window) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	windowed, err := w.resolve(uic, req)
	if err != nil {
		return escape.Fail(err)
	}
	if !windowed {
		return w.Base.PreparePaint(uic, req)
	}
	d := w.delegate()
	return d.UI().PreparePaint(d, req)
}

// Paint paints the window content as a full page.
func (w *Window) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	if w.win == nil {
		return w.Base.Paint(uic, rc)
	}
	d := w.delegate()
	rc.SetContentType(ContentTypeXML)
	return rc.Stack().With(d, func() escape.Outcome {
		return paintShell(d, rc, func() escape.Outcome {
			return d.UI().Paint(d, rc)
		})
	})
}

var (
	_ Interceptor = (*Targetable)(nil)
	_ Interceptor = (*Window)(nil)
)
