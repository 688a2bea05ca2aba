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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTimeout is the per-tool wall-clock budget.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutput caps captured bytes per stream.
	DefaultMaxOutput = 1 << 20

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the tool itself has been killed.
	waitDelay = 2 * time.Second
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes one tool against one file.
//
// Implementations must always return a RunOutcome and never panic; every
// fault is encoded in the outcome's flags and Stderr.
type Runner interface {
	Run(ctx context.Context, spec ToolSpec, filePath string, timeout time.Duration) RunOutcome
}

// ExecRunner runs tools as child processes.
//
// Description:
//
//	argv is spec.Command followed by the file path. Environment and working
//	directory are inherited unmodified. stdout and stderr are captured
//	separately. On unix the child gets its own process group so a timeout
//	also kills anything it spawned (npx → node, for example).
//
// Thread Safety: Safe for concurrent use.
type ExecRunner struct {
	maxOutput int
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithMaxOutput sets the per-stream capture cap in bytes.
func WithMaxOutput(n int) RunnerOption {
	return func(r *ExecRunner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// NewExecRunner creates a process runner.
func NewExecRunner(opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{maxOutput: DefaultMaxOutput}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Runner.
//
// Description:
//
//	Starts the tool, waits for it under timeout, and classifies the result.
//	A non-zero exit is reported as-is. Timeouts, launch failures and
//	cancellation by ctx are reported through the outcome flags with
//	ExitCode -1 and an explanatory Stderr line.
//
// Inputs:
//
//	ctx - Outer context; its cancellation kills the child and sets Canceled
//	spec - The tool to run
//	filePath - Appended as the final argument
//	timeout - Per-tool budget; <= 0 means DefaultTimeout
//
// Outputs:
//
//	RunOutcome - Always populated
//
// Thread Safety: Safe for concurrent use.
func (r *ExecRunner) Run(ctx context.Context, spec ToolSpec, filePath string, timeout time.Duration) (out RunOutcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := startRunSpan(ctx, spec, filePath)
	defer span.End()

	start := time.Now()
	out.Label = spec.Label
	defer func() {
		out.Duration = time.Since(start)
		setRunSpanResult(span, out)
		recordRunMetrics(ctx, spec, out)
	}()

	if spec.Executable() == "" {
		return launchFailure(spec, fmt.Errorf("%w: empty command", ErrInvalidInput))
	}
	if err := ctx.Err(); err != nil {
		return canceledOutcome(spec, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := spec.Argv(filePath)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return launchFailure(spec, err)
	}

	waitErr := cmd.Wait()

	// The outer context wins over the per-tool timeout: when both fired the
	// caller's deadline is what ended the run.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return canceledOutcome(spec, ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && waitErr != nil {
		return RunOutcome{
			Label:    spec.Label,
			ExitCode: -1,
			TimedOut: true,
			Stderr:   "timed out after " + humanDuration(timeout),
		}
	}

	out = RunOutcome{
		Label:  spec.Label,
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		out.ExitedZero = true
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	case cmd.ProcessState != nil:
		// exec.ErrWaitDelay and copy errors leave a valid exit status behind.
		out.ExitCode = cmd.ProcessState.ExitCode()
		out.ExitedZero = cmd.ProcessState.Success()
	default:
		out.ExitCode = -1
		out.Stderr = joinLines(out.Stderr, fmt.Sprintf("failed: %v", waitErr))
	}
	return out
}

func launchFailure(spec ToolSpec, err error) RunOutcome {
	missing := errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
	return RunOutcome{
		Label:        spec.Label,
		ExitCode:     -1,
		LaunchFailed: true,
		ToolMissing:  missing,
		Stderr:       fmt.Sprintf("failed to start: %v", err),
	}
}

func canceledOutcome(spec ToolSpec, err error) RunOutcome {
	return RunOutcome{
		Label:    spec.Label,
		ExitCode: -1,
		Canceled: true,
		Stderr:   fmt.Sprintf("canceled: %v", err),
	}
}

// humanDuration prints whole seconds the way people say them.
func humanDuration(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

// =============================================================================
// OUTPUT CAPTURE
// =============================================================================

// cappedBuffer keeps the first limit bytes written and silently drops the rest.
// Writes always report full success so the child never sees EPIPE.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
