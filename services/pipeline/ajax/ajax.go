// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ajax implements the partial-update protocol: resolving the
// operation a trigger registered during the last render, deciding how much
// of the tree the action phase processes, and painting only the operation's
// targets inside an ajaxresponse envelope.
//
// # Wire Format
//
//	<ui:ajaxresponse xmlns:ui="..." step="7">
//	  <ui:ajaxtarget id="panel" action="replace">...panel XML...</ui:ajaxtarget>
//	  <ui:ajaxtarget id="total" action="replace">...total XML...</ui:ajaxtarget>
//	</ui:ajaxresponse>
//
// When the operation names a container the envelope holds a single target
// with action="replaceContent".
package ajax

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// Wire Constants
// =============================================================================

const (
	// ElementResponse is the envelope element.
	ElementResponse = ui.NamespacePrefix + ":ajaxresponse"

	// ElementTarget wraps the XML of one updated component.
	ElementTarget = ui.NamespacePrefix + ":ajaxtarget"

	// ElementRedirect tells the client to load a new page instead.
	ElementRedirect = ui.NamespacePrefix + ":redirect"

	// ActionReplace replaces the element with the given id.
	ActionReplace = "replace"

	// ActionReplaceContent replaces the children of the element with the
	// given id.
	ActionReplaceContent = "replaceContent"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoTrigger means the request carried no trigger id at all.
	ErrNoTrigger = fmt.Errorf("%w: no AJAX trigger id on request", escape.ErrConfiguration)

	// ErrNoOperation means no operation is registered for the trigger.
	ErrNoOperation = errors.New("no AJAX operation registered for trigger")

	// ErrTriggerNotFound means the trigger id does not resolve to a
	// component in the tree.
	ErrTriggerNotFound = errors.New("AJAX trigger component not found")
)

// =============================================================================
// Resolution
// =============================================================================

// TriggerID returns the trigger id named by req, or ErrNoTrigger.
func TriggerID(req transport.Request) (string, error) {
	id := req.Parameter(transport.ParamAjaxTrigger)
	if id == "" {
		return "", ErrNoTrigger
	}
	return id, nil
}

// Resolve looks up the operation registered for triggerID and the trigger
// component it belongs to.
//
// # Description
//
// The registry entry is replaced by a copy whose use count is incremented,
// and the returned binding carries that copy.
//
// # Outputs
//
//   - ui.AjaxBinding: the operation and the trigger with its own context.
//   - error: ErrNoOperation or ErrTriggerNotFound (both wrapped with the
//     trigger id).
func Resolve(uic ui.Context, root ui.Component, triggerID string) (ui.AjaxBinding, error) {
	op, ok := uic.AjaxOperation(triggerID)
	if !ok {
		return ui.AjaxBinding{}, fmt.Errorf("%w: %s", ErrNoOperation, triggerID)
	}
	trigger, ok := ui.FindByID(uic, root, triggerID)
	if !ok {
		return ui.AjaxBinding{}, fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}
	op = op.Used()
	uic.RegisterAjaxOperation(op)
	return ui.AjaxBinding{Operation: op, Trigger: trigger}, nil
}

// TriggerOnly decides whether the action phase processes only the trigger
// rather than the entire tree. The rules apply in order:
//
//  1. the operation names a container
//  2. the trigger polls itself with a positive delay
//  3. the only target is the trigger itself
//
// Anything else services the full tree.
func TriggerOnly(b ui.AjaxBinding) bool {
	if b.Operation.ContainerID() != "" {
		return true
	}
	if poller, ok := b.Trigger.Component.(ui.AjaxPoller); ok && poller.PollDelay() > 0 {
		return true
	}
	targets := b.Operation.Targets()
	return len(targets) == 1 && targets[0] == b.Operation.TriggerID()
}

// =============================================================================
// Painting
// =============================================================================

// Painter writes the ajaxresponse envelope for a resolved operation.
type Painter struct {
	// Logger receives warnings about unresolvable targets.
	Logger *slog.Logger
}

func (p Painter) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// PaintTargets writes the envelope and paints each target of b.
//
// # Description
//
// Target ids are rendered ids (a row button registers its row's prefix),
// so they are resolved from root under uic. Each target is painted inside
// the context it was found in, so a target inside a repeated row paints
// with that row's state. A target that cannot be resolved is logged and
// skipped; the envelope is always completed.
//
// # Outputs
//
//   - escape.Outcome: Continue, or the first non-Continue outcome returned
//     by a target's Paint. The envelope is closed either way.
func (p Painter) PaintTargets(uic ui.Context, root ui.Component, b ui.AjaxBinding, rc *ui.RenderContext) escape.Outcome {
	x := rc.XML()
	OpenEnvelope(x, uic.Environment().Step())
	defer x.End(ElementResponse)

	if container := b.Operation.ContainerID(); container != "" {
		target, ok := p.resolve(uic, root, b, container)
		if !ok {
			return escape.Proceed()
		}
		return paintTarget(target, rc, container, ActionReplaceContent)
	}

	for _, id := range b.Operation.Targets() {
		target, ok := p.resolve(uic, root, b, id)
		if !ok {
			continue
		}
		if out := paintTarget(target, rc, id, ActionReplace); !out.IsContinue() {
			return out
		}
	}
	return escape.Proceed()
}

func (p Painter) resolve(uic ui.Context, root ui.Component, b ui.AjaxBinding, id string) (ui.ComponentWithContext, bool) {
	target, found := ui.FindByID(uic, root, id)
	if !found {
		p.logger().Warn("AJAX target not found, skipping",
			"trigger_id", b.Operation.TriggerID(),
			"target_id", id,
		)
	}
	return target, found
}

func paintTarget(target ui.ComponentWithContext, rc *ui.RenderContext, id, action string) escape.Outcome {
	x := rc.XML()
	x.Open(ElementTarget).Attr("id", id).Attr("action", action).Close()
	out := rc.Stack().With(target.Context, func() escape.Outcome {
		return target.Component.Paint(target.Context, rc)
	})
	x.End(ElementTarget)
	return out
}

// OpenEnvelope writes the opening ajaxresponse tag.
func OpenEnvelope(x *ui.XMLWriter, step int) {
	x.Open(ElementResponse).Attr("xmlns:"+ui.NamespacePrefix, ui.Namespace)
	if step > 0 {
		x.IntAttr("step", step)
	}
	x.Close()
}

// WriteEmpty writes an envelope with no targets.
func WriteEmpty(x *ui.XMLWriter, step int) {
	OpenEnvelope(x, step)
	x.End(ElementResponse)
}

// WriteRedirect writes an envelope telling the client to load url.
func WriteRedirect(x *ui.XMLWriter, url string) {
	OpenEnvelope(x, 0)
	x.Open(ElementRedirect).Attr("url", url).SelfClose()
	x.End(ElementResponse)
}
