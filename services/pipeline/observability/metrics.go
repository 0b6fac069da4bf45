// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the request
// pipeline.
//
// # Description
//
// Metrics include:
//   - Request counters by request class and final outcome
//   - Phase latency histograms (action, prepare, paint)
//   - Guard rejections (session token, step) and escapes
//   - AJAX targets painted or skipped
//   - Live user contexts and expired sessions
//
// # Integration
//
// Metrics are exposed on the server's /metrics endpoint. Every Record method
// is safe to call on a nil *PipelineMetrics, so components can be built
// without metrics in tests.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for pipeline metrics
const pipelineSubsystem = "forms"

// PipelineMetrics holds the Prometheus metrics of the request pipeline.
//
// # Fields
//
//   - RequestsTotal: completed requests by class and outcome
//   - PhaseDurationSeconds: time spent per phase
//   - EscapesTotal: escapes raised by class and kind
//   - TokenRejectionsTotal: session token mismatches
//   - StepErrorsTotal: stale steps by class and recovery
//   - AjaxTargetsTotal: AJAX targets painted or skipped
//   - ActiveContexts: live user contexts
//   - SessionsExpiredTotal: contexts removed by the cleaner
type PipelineMetrics struct {
	// RequestsTotal counts completed requests.
	// Labels: class (primary, ajax, content), outcome (continue, redirect, ...)
	RequestsTotal *prometheus.CounterVec

	// PhaseDurationSeconds measures phase latency.
	// Labels: class, phase (action, prepare, paint)
	PhaseDurationSeconds *prometheus.HistogramVec

	// EscapesTotal counts escapes by kind.
	// Labels: class, kind (redirect, error_code, error_page)
	EscapesTotal *prometheus.CounterVec

	// TokenRejectionsTotal counts session token mismatches.
	// Labels: class, reason (mismatch, expired)
	TokenRejectionsTotal *prometheus.CounterVec

	// StepErrorsTotal counts stale step numbers.
	// Labels: class, recovery (redirect, warp, reject)
	StepErrorsTotal *prometheus.CounterVec

	// AjaxTargetsTotal counts AJAX targets.
	// Labels: result (painted, missing)
	AjaxTargetsTotal *prometheus.CounterVec

	// ActiveContexts tracks live user contexts.
	ActiveContexts prometheus.Gauge

	// SessionsExpiredTotal counts contexts dropped for inactivity.
	SessionsExpiredTotal prometheus.Counter
}

// DefaultMetrics is the instance registered with the default registry.
// Initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics registers the pipeline metrics with the default Prometheus
// registry and stores them in DefaultMetrics.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = NewPipelineMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewPipelineMetrics creates the metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry().
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "requests_total",
				Help:      "Total pipeline requests by class and outcome",
			},
			[]string{"class", "outcome"},
		),

		PhaseDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "phase_duration_seconds",
				Help:      "Time spent in each lifecycle phase in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"class", "phase"},
		),

		EscapesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "escapes_total",
				Help:      "Total escapes raised by class and kind",
			},
			[]string{"class", "kind"},
		),

		TokenRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "session_token_rejections_total",
				Help:      "Total requests rejected for a wrong session token",
			},
			[]string{"class", "reason"},
		),

		StepErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "step_errors_total",
				Help:      "Total requests with a stale step by class and recovery",
			},
			[]string{"class", "recovery"},
		),

		AjaxTargetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "ajax_targets_total",
				Help:      "Total AJAX targets painted or skipped",
			},
			[]string{"result"},
		),

		ActiveContexts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_contexts",
				Help:      "Number of live user contexts",
			},
		),

		SessionsExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sessions_expired_total",
				Help:      "Total user contexts removed after inactivity",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Phase names a lifecycle phase for metrics labeling.
type Phase string

const (
	PhaseAction  Phase = "action"
	PhasePrepare Phase = "prepare"
	PhasePaint   Phase = "paint"
)

// Recovery names how a stale step was handled.
type Recovery string

const (
	// RecoveryRedirect sent the client to the configured error URL.
	RecoveryRedirect Recovery = "redirect"

	// RecoveryWarp sent the client to the current state.
	RecoveryWarp Recovery = "warp"

	// RecoveryReject answered with an error code.
	RecoveryReject Recovery = "reject"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request.
//
// # Inputs
//
//   - class: The request class ("primary", "ajax", "content").
//   - outcome: The final outcome kind.
func (m *PipelineMetrics) RecordRequest(class, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(class, outcome).Inc()
}

// ObservePhase records the duration of one phase.
func (m *PipelineMetrics) ObservePhase(class string, phase Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDurationSeconds.WithLabelValues(class, string(phase)).Observe(d.Seconds())
}

// RecordEscape records an escape raised during a request.
func (m *PipelineMetrics) RecordEscape(class, kind string) {
	if m == nil {
		return
	}
	m.EscapesTotal.WithLabelValues(class, kind).Inc()
}

// RecordTokenRejection records a session token mismatch. expired is true
// when the session had no token at all.
func (m *PipelineMetrics) RecordTokenRejection(class string, expired bool) {
	if m == nil {
		return
	}
	reason := "mismatch"
	if expired {
		reason = "expired"
	}
	m.TokenRejectionsTotal.WithLabelValues(class, reason).Inc()
}

// RecordStepError records a stale step.
func (m *PipelineMetrics) RecordStepError(class string, recovery Recovery) {
	if m == nil {
		return
	}
	m.StepErrorsTotal.WithLabelValues(class, string(recovery)).Inc()
}

// RecordAjaxTarget records one AJAX target.
func (m *PipelineMetrics) RecordAjaxTarget(painted bool) {
	if m == nil {
		return
	}
	result := "painted"
	if !painted {
		result = "missing"
	}
	m.AjaxTargetsTotal.WithLabelValues(result).Inc()
}

// ContextCreated increments the live context gauge.
func (m *PipelineMetrics) ContextCreated() {
	if m == nil {
		return
	}
	m.ActiveContexts.Inc()
}

// ContextRemoved decrements the live context gauge. expired marks removals
// made by the inactivity cleaner.
func (m *PipelineMetrics) ContextRemoved(expired bool) {
	if m == nil {
		return
	}
	m.ActiveContexts.Dec()
	if expired {
		m.SessionsExpiredTotal.Inc()
	}
}
