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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func scriptSpec(path string) ToolSpec {
	return ToolSpec{Command: []string{path}, Label: "Script check"}
}

func TestExecRunner_CleanExit(t *testing.T) {
	script := writeScript(t, `echo "checked $1"`)

	out := NewExecRunner().Run(context.Background(), scriptSpec(script), "main.py", 5*time.Second)

	assert.True(t, out.ExitedZero)
	assert.Zero(t, out.ExitCode)
	assert.Equal(t, "checked main.py", out.Stdout)
	assert.False(t, out.Faulted())
	assert.Equal(t, "Script check", out.Label)
	assert.Greater(t, out.Duration, time.Duration(0))
}

func TestExecRunner_NonZeroExitSeparatesStreams(t *testing.T) {
	script := writeScript(t, `echo "out line"; echo "err line" >&2; exit 3`)

	out := NewExecRunner().Run(context.Background(), scriptSpec(script), "a.ts", 5*time.Second)

	assert.False(t, out.ExitedZero)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "out line", out.Stdout)
	assert.Equal(t, "err line", out.Stderr)
	assert.False(t, out.Faulted())
}

func TestExecRunner_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 10`)

	start := time.Now()
	out := NewExecRunner().Run(context.Background(), scriptSpec(script), "a.ts", 200*time.Millisecond)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, out.TimedOut)
	assert.Equal(t, -1, out.ExitCode)
	assert.Empty(t, out.Stdout)
	assert.True(t, strings.HasPrefix(out.Stderr, "timed out after"), out.Stderr)

	diags := Normalize(out, scriptSpec(script), "a.ts")
	require.Len(t, diags, 1)
	assert.Equal(t, 1, strings.Count(diags[0].String(), "Script check"), diags[0].String())
	assert.True(t, strings.HasPrefix(diags[0].String(), "Script check: timed out after"))
}

func TestExecRunner_TimeoutKillsChildren(t *testing.T) {
	// The grandchild holds stdout open; without a group kill Wait would
	// block until WaitDelay.
	script := writeScript(t, `sleep 10 & wait`)

	start := time.Now()
	out := NewExecRunner().Run(context.Background(), scriptSpec(script), "a.ts", 200*time.Millisecond)

	assert.True(t, out.TimedOut)
	assert.Less(t, time.Since(start), waitDelay)
}

func TestExecRunner_ParentCancel(t *testing.T) {
	script := writeScript(t, `sleep 10`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out := NewExecRunner().Run(ctx, scriptSpec(script), "a.ts", 10*time.Second)

	assert.True(t, out.Canceled)
	assert.False(t, out.TimedOut)
	assert.Equal(t, -1, out.ExitCode)
}

func TestExecRunner_AlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewExecRunner().Run(ctx, ToolSpec{Command: []string{"true"}, Label: "noop"}, "a.ts", time.Second)

	assert.True(t, out.Canceled)
}

func TestExecRunner_LaunchFailure_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root bypasses execute permission")
	}
	path := filepath.Join(t.TempDir(), "not-exec.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	var out RunOutcome
	require.NotPanics(t, func() {
		out = NewExecRunner().Run(context.Background(), scriptSpec(path), "a.ts", time.Second)
	})

	assert.False(t, out.ExitedZero)
	assert.True(t, out.LaunchFailed)
	assert.False(t, out.ToolMissing)
	assert.Equal(t, -1, out.ExitCode)
	assert.True(t, strings.HasPrefix(out.Stderr, "failed to start:"), out.Stderr)

	diags := Normalize(out, scriptSpec(path), "a.ts")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Text, "failed")
}

func TestExecRunner_LaunchFailure_Missing(t *testing.T) {
	spec := ToolSpec{Command: []string{"definitely-not-a-real-linter-xyz"}, Label: "Ghost"}

	out := NewExecRunner().Run(context.Background(), spec, "a.ts", time.Second)

	assert.True(t, out.LaunchFailed)
	assert.True(t, out.ToolMissing)
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	out := NewExecRunner().Run(context.Background(), ToolSpec{Label: "empty"}, "a.ts", time.Second)

	assert.True(t, out.LaunchFailed)
	assert.Contains(t, out.Stderr, "empty command")
}

func TestExecRunner_CapsOutput(t *testing.T) {
	script := writeScript(t, `i=0; while [ $i -lt 200 ]; do echo "0123456789"; i=$((i+1)); done; exit 1`)

	out := NewExecRunner(WithMaxOutput(64)).Run(context.Background(), scriptSpec(script), "a.ts", 5*time.Second)

	assert.Equal(t, 1, out.ExitCode)
	assert.LessOrEqual(t, len(out.Stdout), 64)
}

func TestPathProber(t *testing.T) {
	p := NewPathProber()

	avail := p.Probe("definitely-not-a-real-linter-xyz")
	assert.False(t, avail.Available)
	assert.Equal(t, ReasonNotInstalled, avail.Reason)
	assert.ErrorIs(t, avail.Err, ErrToolNotInstalled)

	empty := p.Probe("")
	assert.False(t, empty.Available)

	if runtime.GOOS != "windows" {
		script := writeScript(t, "exit 0")
		found := p.Probe(script)
		assert.True(t, found.Available)
		assert.Equal(t, ReasonFound, found.Reason)
		assert.True(t, IsAvailable(p, script))
	}
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "30 seconds", humanDuration(30*time.Second))
	assert.Equal(t, "1 second", humanDuration(time.Second))
	assert.Equal(t, "1.5s", humanDuration(1500*time.Millisecond))
}
