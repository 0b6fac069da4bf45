// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"log/slog"

	"github.com/AleutianAI/AleutianForms/services/pipeline/ajax"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// ContentTypeXML is written for every XML response.
const ContentTypeXML = "text/xml; charset=UTF-8"

// =============================================================================
// AJAX Setup
// =============================================================================

// AjaxSetup resolves the AJAX operation of the request and decides how much
// of the tree the action phase services.
//
// # Description
//
// A request without a trigger id fails with a configuration error. A
// trigger with no registered operation, or one no longer in the tree, is
// logged and the action is skipped; the render then writes an empty
// envelope. Otherwise the binding is published on the context and either
// only the trigger is serviced (see ajax.TriggerOnly) or the request
// continues down the chain.
//
// The operation is removed from the registry as soon as it is resolved, so
// a request that escapes or fails cannot be replayed with it. Components
// prepared in this response may register it again.
type AjaxSetup struct {
	Base
	logger *slog.Logger
}

// NewAjaxSetup creates the AJAX setup interceptor.
func NewAjaxSetup(logger *slog.Logger) *AjaxSetup {
	if logger == nil {
		logger = slog.Default()
	}
	return &AjaxSetup{logger: logger}
}

// Kind implements Interceptor.
func (a *AjaxSetup) Kind() Kind { return KindAjaxSetup }

// ServiceRequest resolves the binding and services the trigger or the tree.
func (a *AjaxSetup) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	uic.ClearCurrentAjax()
	triggerID, err := ajax.TriggerID(req)
	if err != nil {
		return escape.Fail(err)
	}
	binding, err := ajax.Resolve(uic, uic.UI(), triggerID)
	if err != nil {
		a.logger.Error("AJAX operation could not be resolved, action skipped",
			"trigger_id", triggerID,
			"session_id", ui.SessionID(uic),
			"error", err,
		)
		return escape.Proceed()
	}
	uic.RemoveAjaxOperation(triggerID)
	uic.SetCurrentAjax(binding)

	if ajax.TriggerOnly(binding) {
		return binding.Trigger.Component.ServiceRequest(binding.Trigger.Context, req)
	}
	return a.Base.ServiceRequest(uic, req)
}

// Paint forwards and clears the binding afterwards.
func (a *AjaxSetup) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	defer uic.ClearCurrentAjax()
	return a.Base.Paint(uic, rc)
}

// =============================================================================
// AJAX Paint
// =============================================================================

// AjaxPaint prepares and paints only the targets of the current operation.
// It is the innermost interceptor of an AJAX chain: the rest of the tree is
// neither prepared nor painted.
type AjaxPaint struct {
	Base
	painter ajax.Painter
	metrics *observability.PipelineMetrics
}

// NewAjaxPaint creates the AJAX paint interceptor.
func NewAjaxPaint(logger *slog.Logger, metrics *observability.PipelineMetrics) *AjaxPaint {
	return &AjaxPaint{painter: ajax.Painter{Logger: logger}, metrics: metrics}
}

// Kind implements Interceptor.
func (a *AjaxPaint) Kind() Kind { return KindAjaxPaint }

// PreparePaint prepares each resolvable target in its own context.
func (a *AjaxPaint) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	binding, ok := uic.CurrentAjax()
	if !ok {
		return escape.Proceed()
	}
	ids := binding.Operation.Targets()
	if c := binding.Operation.ContainerID(); c != "" {
		ids = []string{c}
	}
	for _, id := range ids {
		target, found := ui.FindByID(uic, uic.UI(), id)
		if !found {
			continue
		}
		if out := target.Component.PreparePaint(target.Context, req); !out.IsContinue() {
			return out
		}
	}
	return escape.Proceed()
}

// Paint writes the envelope, empty when no operation was resolved.
func (a *AjaxPaint) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	rc.SetContentType(ContentTypeXML)
	binding, ok := uic.CurrentAjax()
	if !ok {
		ajax.WriteEmpty(rc.XML(), uic.Environment().Step())
		return escape.Proceed()
	}
	if a.metrics != nil {
		for _, id := range binding.Operation.Targets() {
			_, found := ui.FindByID(uic, uic.UI(), id)
			a.metrics.RecordAjaxTarget(found)
		}
	}
	return a.painter.PaintTargets(uic, uic.UI(), binding, rc)
}

// =============================================================================
// AJAX Cleanup
// =============================================================================

// AjaxCleanup empties the AJAX registry before a full-page render so that
// it holds exactly the operations registered by the components painted in
// that render.
type AjaxCleanup struct {
	Base
}

// NewAjaxCleanup creates the cleanup interceptor.
func NewAjaxCleanup() *AjaxCleanup { return &AjaxCleanup{} }

// Kind implements Interceptor.
func (a *AjaxCleanup) Kind() Kind { return KindAjaxCleanup }

// PreparePaint clears the registry, then forwards.
func (a *AjaxCleanup) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	uic.ClearAjaxOperations()
	return a.Base.PreparePaint(uic, req)
}

var (
	_ Interceptor = (*AjaxSetup)(nil)
	_ Interceptor = (*AjaxPaint)(nil)
	_ Interceptor = (*AjaxCleanup)(nil)
)
