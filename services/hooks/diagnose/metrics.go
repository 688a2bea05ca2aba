// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnose

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter. Both resolve to no-ops until the
// process installs providers through pkg/telemetry.
var (
	tracer = otel.Tracer("aleutian.hooks")
	meter  = otel.Meter("aleutian.hooks")
)

var (
	toolDuration    metric.Float64Histogram
	toolRuns        metric.Int64Counter
	toolsSkipped    metric.Int64Counter
	diagnosticsSeen metric.Int64Counter
	evaluateTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		toolDuration, err = meter.Float64Histogram(
			"hooks_tool_duration_seconds",
			metric.WithDescription("Wall-clock duration of one tool run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolRuns, err = meter.Int64Counter(
			"hooks_tool_runs_total",
			metric.WithDescription("Tool runs by label and result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolsSkipped, err = meter.Int64Counter(
			"hooks_tools_skipped_total",
			metric.WithDescription("Tools skipped because they were not available"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diagnosticsSeen, err = meter.Int64Counter(
			"hooks_diagnostics_total",
			metric.WithDescription("Diagnostics produced, before the display cap"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluateTotal, err = meter.Int64Counter(
			"hooks_evaluations_total",
			metric.WithDescription("Files evaluated by rule and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// =============================================================================
// RUN SPANS
// =============================================================================

func startRunSpan(ctx context.Context, spec ToolSpec, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ExecRunner.Run",
		trace.WithAttributes(
			attribute.String("hooks.tool", spec.Label),
			attribute.String("hooks.command", spec.Executable()),
			attribute.String("hooks.file_path", filePath),
		),
	)
}

func setRunSpanResult(span trace.Span, out RunOutcome) {
	span.SetAttributes(
		attribute.Int("hooks.exit_code", out.ExitCode),
		attribute.Bool("hooks.timed_out", out.TimedOut),
		attribute.Bool("hooks.launch_failed", out.LaunchFailed),
		attribute.Bool("hooks.canceled", out.Canceled),
	)
	if out.Faulted() {
		span.SetStatus(codes.Error, out.Stderr)
	}
}

// runResult collapses an outcome into a low-cardinality label.
func runResult(out RunOutcome) string {
	switch {
	case out.TimedOut:
		return "timeout"
	case out.LaunchFailed:
		return "launch_failed"
	case out.Canceled:
		return "canceled"
	case out.ExitedZero:
		return "clean"
	default:
		return "issues"
	}
}

func recordRunMetrics(ctx context.Context, spec ToolSpec, out RunOutcome) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", spec.Label),
		attribute.String("result", runResult(out)),
	)
	// The run context may already be done; metrics must still land.
	ctx = context.WithoutCancel(ctx)
	toolDuration.Record(ctx, out.Duration.Seconds(), attrs)
	toolRuns.Add(ctx, 1, attrs)
}

// =============================================================================
// EVALUATE SPANS
// =============================================================================

func startEvaluateSpan(ctx context.Context, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Evaluate",
		trace.WithAttributes(attribute.String("hooks.file_path", filePath)),
	)
}

func setEvaluateSpanResult(span trace.Span, v Verdict, duration time.Duration) {
	span.SetAttributes(
		attribute.String("hooks.rule", v.Rule),
		attribute.Bool("hooks.ok", v.OK),
		attribute.Int("hooks.tools_run", v.ToolsRun),
		attribute.Int("hooks.tools_skipped", v.ToolsSkipped),
		attribute.Int("hooks.diagnostic_count", len(v.Diagnostics)),
		attribute.Bool("hooks.inconclusive", v.Inconclusive),
		attribute.String("hooks.reason", v.Reason.String()),
		attribute.Float64("hooks.duration_seconds", duration.Seconds()),
	)
}

func recordSkipMetric(ctx context.Context, spec ToolSpec, reason AvailabilityReason) {
	if err := initMetrics(); err != nil {
		return
	}
	toolsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", spec.Label),
		attribute.String("reason", reason.String()),
	))
}

func recordEvaluateMetrics(ctx context.Context, v Verdict) {
	if err := initMetrics(); err != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	outcome := "clean"
	switch {
	case v.Inconclusive:
		outcome = "inconclusive"
	case !v.Checked():
		outcome = v.Reason.String()
	case !v.OK:
		outcome = "issues"
	}
	evaluateTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", v.Rule),
		attribute.String("outcome", outcome),
	))

	if len(v.Diagnostics) == 0 {
		return
	}
	counts := make(map[string]int64)
	for _, d := range v.Diagnostics {
		counts[d.Tool]++
	}
	for tool, n := range counts {
		diagnosticsSeen.Add(ctx, n, metric.WithAttributes(attribute.String("tool", tool)))
	}
}
