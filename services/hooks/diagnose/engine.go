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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxDiagnostics is the display cap on a Verdict message.
const DefaultMaxDiagnostics = 10

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates files against a Registry.
//
// Description:
//
//	Looks up the file's rule, probes each linter then formatter, runs the
//	available ones and folds their normalized output into a Verdict.
//	Everything that can go wrong with an external tool degrades into a
//	Diagnostic, a skip, or the Inconclusive flag. Evaluate has no error
//	return.
//
// Thread Safety: Safe for concurrent use. Holds no mutable state.
type Engine struct {
	registry       *Registry
	prober         Prober
	runner         Runner
	timeout        time.Duration
	maxDiagnostics int
	concurrency    int
	logger         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithProber replaces the PATH prober.
func WithProber(p Prober) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.prober = p
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithTimeout sets the per-tool timeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxDiagnostics sets the display cap.
func WithMaxDiagnostics(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDiagnostics = n
		}
	}
}

// WithConcurrency sets how many tools may run at once. 1 is sequential.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over registry.
//
// Inputs:
//
//	registry - Rules to evaluate against. Nil means DefaultRegistry.
//	opts - Optional overrides
//
// Outputs:
//
//	*Engine - Ready to use
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	e := &Engine{
		registry:       registry,
		prober:         NewPathProber(),
		runner:         NewExecRunner(),
		timeout:        DefaultTimeout,
		maxDiagnostics: DefaultMaxDiagnostics,
		concurrency:    1,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Prober returns the engine's availability prober.
func (e *Engine) Prober() Prober {
	return e.prober
}

// Runner returns the engine's tool runner.
func (e *Engine) Runner() Runner {
	return e.runner
}

// plannedRun is one available tool queued for execution.
type plannedRun struct {
	spec    ToolSpec
	outcome RunOutcome
	started bool
}

// Evaluate checks one file.
//
// Description:
//
//	 1. File missing: OK, nothing run, ReasonFileMissing.
//	 2. No matching rule: OK, nothing run, ReasonUnrecognized.
//	 3. Linters then formatters are probed in registry order. Unavailable
//	    tools are skipped and counted.
//	 4. Available tools run, sequentially or bounded-parallel. Results are
//	    kept in registry order either way.
//	 5. Outputs are normalized, deduplicated and capped for display.
//
//	When ctx ends early, tools not yet started are not started and each
//	contributes one "not run" Diagnostic; the Verdict is Inconclusive.
//
// Inputs:
//
//	ctx - Outer deadline. Expiry kills in-flight tools.
//	filePath - File to evaluate
//
// Outputs:
//
//	Verdict - Always populated
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Evaluate(ctx context.Context, filePath string) (v Verdict) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := startEvaluateSpan(ctx, filePath)
	defer span.End()

	v = Verdict{File: filePath, MaxShown: e.maxDiagnostics}
	logger := e.logger.With(slog.String("file", filePath))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("evaluation panicked", slog.Any("panic", r))
			v.Inconclusive = true
			v.Diagnostics = append(v.Diagnostics, Diagnostic{
				Tool:  "aleutian-hooks",
				Text:  fmt.Sprintf("internal error: %v", r),
				Fault: true,
			})
			v.OK = false
			v.TruncatedCount = truncatedCount(len(v.Diagnostics), e.maxDiagnostics)
		}
		setEvaluateSpanResult(span, v, time.Since(start))
		recordEvaluateMetrics(ctx, v)
	}()

	if _, err := os.Stat(filePath); err != nil {
		logger.Debug("file not found", slog.String("error", err.Error()))
		v.OK = true
		v.Reason = ReasonFileMissing
		return v
	}

	rule, ok := e.registry.Lookup(filePath)
	if !ok {
		logger.Debug("no rule for file type")
		v.OK = true
		v.Reason = ReasonUnrecognized
		return v
	}
	v.Rule = rule.Name

	var planned []*plannedRun
	for _, spec := range rule.Tools() {
		avail := e.prober.Probe(spec.Executable())
		if !avail.Available {
			v.ToolsSkipped++
			recordSkipMetric(ctx, spec, avail.Reason)
			e.logSkip(logger, spec, avail)
			continue
		}
		planned = append(planned, &plannedRun{spec: spec})
	}

	e.runAll(ctx, filePath, planned)

	var diags []Diagnostic
	for _, p := range planned {
		if !p.started {
			v.Inconclusive = true
			diags = append(diags, Diagnostic{
				Tool:  p.spec.Label,
				Text:  "not run: " + contextReason(ctx),
				Fault: true,
			})
			continue
		}
		v.ToolsRun++
		if p.outcome.Canceled {
			v.Inconclusive = true
		}
		e.logOutcome(logger, p.spec, p.outcome)
		diags = append(diags, Normalize(p.outcome, p.spec, filePath)...)
	}

	v.Diagnostics = dedupe(diags)
	v.OK = len(v.Diagnostics) == 0
	v.TruncatedCount = truncatedCount(len(v.Diagnostics), e.maxDiagnostics)
	if v.ToolsRun == 0 && !v.Inconclusive {
		v.Reason = ReasonUnavailable
	}

	logger.Info("file evaluated",
		slog.String("rule", v.Rule),
		slog.Bool("ok", v.OK),
		slog.Int("tools_run", v.ToolsRun),
		slog.Int("tools_skipped", v.ToolsSkipped),
		slog.Int("diagnostics", len(v.Diagnostics)),
		slog.Bool("inconclusive", v.Inconclusive),
		slog.Duration("duration", time.Since(start)),
	)
	return v
}

// runAll executes planned tools, filling outcome and started in place.
func (e *Engine) runAll(ctx context.Context, filePath string, planned []*plannedRun) {
	if e.concurrency <= 1 || len(planned) <= 1 {
		for _, p := range planned {
			if ctx.Err() != nil {
				return
			}
			p.outcome = e.runner.Run(ctx, p.spec, filePath, e.timeout)
			p.started = true
		}
		return
	}

	// Each goroutine writes only its own slot; Wait provides the barrier.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, p := range planned {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.outcome = e.runner.Run(ctx, p.spec, filePath, e.timeout)
			p.started = true
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) logSkip(logger *slog.Logger, spec ToolSpec, avail Availability) {
	attrs := []any{
		slog.String("tool", spec.Label),
		slog.String("command", spec.Executable()),
		slog.String("reason", avail.Reason.String()),
	}
	if avail.Reason == ReasonLookupFailed {
		err := NewToolError(spec, avail.Err)
		logger.Warn("tool lookup failed, skipping", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Debug("tool not installed, skipping", attrs...)
}

func (e *Engine) logOutcome(logger *slog.Logger, spec ToolSpec, out RunOutcome) {
	attrs := []any{
		slog.String("tool", spec.Label),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("duration", out.Duration),
	}
	if err := outcomeError(spec, out); err != nil {
		logger.Warn("tool run faulted", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Debug("tool finished", append(attrs, slog.Bool("clean", out.ExitedZero))...)
}

// outcomeError classifies a faulted outcome. Nil for ordinary exits.
func outcomeError(spec ToolSpec, out RunOutcome) error {
	var err error
	switch {
	case out.TimedOut:
		err = ErrToolTimeout
	case out.ToolMissing:
		err = ErrToolNotInstalled
	case out.LaunchFailed:
		err = ErrToolLaunch
	case out.Canceled:
		err = context.Canceled
	default:
		return nil
	}
	return NewToolError(spec, err).WithOutput(out.Stderr)
}

func contextReason(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "deadline exceeded"
		}
		return err.Error()
	}
	return "evaluation stopped"
}

// dedupe drops repeated (tool, text) pairs, keeping first occurrence.
func dedupe(diags []Diagnostic) []Diagnostic {
	if len(diags) < 2 {
		return diags
	}
	seen := make(map[string]struct{}, len(diags))
	out := diags[:0:0]
	for _, d := range diags {
		key := d.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

func truncatedCount(total, limit int) int {
	if limit <= 0 {
		limit = DefaultMaxDiagnostics
	}
	if total <= limit {
		return 0
	}
	return total - limit
}
