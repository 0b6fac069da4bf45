// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.forms.session")

var (
	contextsCreated metric.Int64Counter
	storeOps        metric.Int64Counter
	sweepDuration   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		contextsCreated, err = meter.Int64Counter(
			"forms_session_contexts_created_total",
			metric.WithDescription("User contexts created, by whether a snapshot was restored"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeOps, err = meter.Int64Counter(
			"forms_session_store_operations_total",
			metric.WithDescription("Snapshot store operations by operation and success"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sweepDuration, err = meter.Float64Histogram(
			"forms_session_sweep_duration_seconds",
			metric.WithDescription("Duration of expired context sweeps"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCreated(ctx context.Context, restored bool) {
	if err := initMetrics(); err != nil {
		return
	}
	contextsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("restored", restored)))
}

func recordStoreOp(ctx context.Context, op string, err error) {
	if initMetrics() != nil {
		return
	}
	storeOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", err == nil),
	))
}

func recordSweep(ctx context.Context, d time.Duration, expired int) {
	if err := initMetrics(); err != nil {
		return
	}
	sweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("expired", expired)))
}
