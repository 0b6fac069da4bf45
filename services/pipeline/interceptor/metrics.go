// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"time"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Metrics times every phase of the chain it heads and counts escapes.
type Metrics struct {
	Base
	class   transport.Class
	metrics *observability.PipelineMetrics
}

// NewMetrics creates the timing interceptor.
func NewMetrics(class transport.Class, metrics *observability.PipelineMetrics) *Metrics {
	return &Metrics{class: class, metrics: metrics}
}

// Kind implements Interceptor.
func (m *Metrics) Kind() Kind { return KindMetrics }

func (m *Metrics) observe(phase observability.Phase, start time.Time, out escape.Outcome) escape.Outcome {
	m.metrics.ObservePhase(m.class.String(), phase, time.Since(start))
	if out.IsEscape() {
		m.metrics.RecordEscape(m.class.String(), out.Kind.String())
	}
	return out
}

// ServiceRequest times the action phase.
func (m *Metrics) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	start := time.Now()
	return m.observe(observability.PhaseAction, start, m.Base.ServiceRequest(uic, req))
}

// PreparePaint times preparation.
func (m *Metrics) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	start := time.Now()
	return m.observe(observability.PhasePrepare, start, m.Base.PreparePaint(uic, req))
}

// Paint times painting.
func (m *Metrics) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	start := time.Now()
	return m.observe(observability.PhasePaint, start, m.Base.Paint(uic, rc))
}

var _ Interceptor = (*Metrics)(nil)
