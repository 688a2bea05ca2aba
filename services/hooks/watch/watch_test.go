// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDedupeChanges(t *testing.T) {
	now := time.Now()
	in := []Change{
		{Path: "a.ts", Op: OpCreate, Time: now},
		{Path: "b.py", Op: OpWrite, Time: now},
		{Path: "a.ts", Op: OpWrite, Time: now.Add(time.Millisecond)},
		{Path: "b.py", Op: OpRemove, Time: now.Add(2 * time.Millisecond)},
	}

	got := dedupeChanges(in)
	require.Len(t, got, 2)
	assert.Equal(t, "a.ts", got[0].Path)
	assert.Equal(t, OpWrite, got[0].Op)
	assert.Equal(t, "b.py", got[1].Path)
	assert.Equal(t, OpRemove, got[1].Op)
}

func TestWatcher_Ignored(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, nil, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer w.fsw.Close()

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "src", "app.ts"), false},
		{filepath.Join(root, "node_modules", "x", "index.js"), true},
		{filepath.Join(root, ".git", "HEAD"), true},
		{filepath.Join(root, "pkg", "__pycache__", "m.pyc"), true},
		{filepath.Join(root, "main.py.swp"), true},
		{filepath.Join(root, "main.py~"), true},
		{filepath.Join(root, "gitignored.ts"), false},
		{filepath.Join(root, "my_node_modules_notes.md"), false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			assert.Equal(t, tt.want, w.ignored(tt.path))
		})
	}
}

func TestNewWatcher_BadRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil, Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "f.ts")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewWatcher(file, nil, Options{})
	assert.Error(t, err)
}

func TestConvertOp(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", ChangeOp(42).String())
}

func TestWatcher_DeliversDebouncedBatch(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "app.ts")

	var mu sync.Mutex
	var batches [][]Change
	handler := func(_ context.Context, changes []Change) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, changes)
	}

	w, err := NewWatcher(root, handler, Options{Debounce: 50 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Keep writing until the watch is established and a batch lands.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(target, []byte("let x = 1\n"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		for _, batch := range batches {
			for _, c := range batch {
				if c.Path == target {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, batch := range batches {
		seen := map[string]bool{}
		for _, c := range batch {
			assert.False(t, seen[c.Path], "duplicate path in batch: %s", c.Path)
			seen[c.Path] = true
		}
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg")
	target := filepath.Join(sub, "mod.py")

	var mu sync.Mutex
	var got []string
	handler := func(_ context.Context, changes []Change) {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range changes {
			got = append(got, c.Path)
		}
	}

	w, err := NewWatcher(root, handler, Options{Debounce: 30 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.MkdirAll(sub, 0o755)
		_ = os.WriteFile(target, []byte("x = 1\n"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		for _, p := range got {
			if p == target {
				return true
			}
		}
		return false
	}, 5*time.Second, 100*time.Millisecond)
}

// fakeEvaluator records evaluated paths and returns canned verdicts.
type fakeEvaluator struct {
	mu       sync.Mutex
	paths    []string
	verdicts map[string]diagnose.Verdict
	deadline bool
}

func (f *fakeEvaluator) Registry() *diagnose.Registry {
	return diagnose.DefaultRegistry()
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, path string) diagnose.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if _, ok := ctx.Deadline(); ok {
		f.deadline = true
	}
	if v, ok := f.verdicts[path]; ok {
		return v
	}
	return diagnose.Verdict{File: path, OK: true, ToolsRun: 1}
}

func TestSession_HandleBatch(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.ts")
	broken := filepath.Join(dir, "broken.py")
	noTools := filepath.Join(dir, "none.js")
	unknown := filepath.Join(dir, "notes.md")
	gone := filepath.Join(dir, "gone.ts")
	for _, p := range []string{clean, broken, noTools, unknown} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.ts"), 0o755))

	eval := &fakeEvaluator{verdicts: map[string]diagnose.Verdict{
		broken: {
			File:        broken,
			ToolsRun:    1,
			Diagnostics: []diagnose.Diagnostic{{Tool: "MyPy type check", Text: "error"}},
		},
		noTools: {File: noTools, OK: true, Reason: diagnose.ReasonUnavailable},
	}}

	var reported []string
	s := NewSession(eval, func(v diagnose.Verdict) {
		reported = append(reported, v.File)
	}, SessionOptions{Deadline: time.Second, Logger: quietLogger()})

	s.HandleBatch(context.Background(), []Change{
		{Path: clean, Op: OpWrite},
		{Path: unknown, Op: OpWrite},
		{Path: broken, Op: OpCreate},
		{Path: gone, Op: OpRemove},
		{Path: filepath.Join(dir, "folder.ts"), Op: OpCreate},
		{Path: noTools, Op: OpWrite},
	})

	assert.Equal(t, []string{clean, broken, noTools}, eval.paths)
	assert.Equal(t, []string{clean, broken, noTools}, reported)
	assert.True(t, eval.deadline)
	assert.Equal(t, Stats{Passed: 1, Failed: 1, Unchecked: 1}, s.Stats())
}

func TestWatcher_CancelDoesNotStartQueuedWork(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "a.ts")
	second := filepath.Join(root, "b.ts")

	started := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var calls int
	var inflightErr error
	handler := func(ctx context.Context, _ []Change) {
		mu.Lock()
		calls++
		mu.Unlock()
		once.Do(func() { close(started) })
		// A slow evaluation that only ends when the context does.
		<-ctx.Done()
		mu.Lock()
		inflightErr = ctx.Err()
		mu.Unlock()
	}

	w, err := NewWatcher(root, handler, Options{Debounce: 30 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(first, []byte("x"), 0o644)
		select {
		case <-started:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	// Queue more changes behind the blocked handler.
	for i := range 3 {
		require.NoError(t, os.WriteFile(second, []byte{byte('a' + i)}, 0o644))
	}
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Less(t, time.Since(start), time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "queued changes must not be evaluated after cancel")
	assert.ErrorIs(t, inflightErr, context.Canceled)
}

func TestSession_RateLimitHonorsCancel(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ts")
	b := filepath.Join(dir, "b.ts")
	require.NoError(t, os.WriteFile(a, nil, 0o644))
	require.NoError(t, os.WriteFile(b, nil, 0o644))

	eval := &fakeEvaluator{}
	s := NewSession(eval, nil, SessionOptions{Rate: 0.01, Burst: 1, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	s.HandleBatch(ctx, []Change{{Path: a, Op: OpWrite}, {Path: b, Op: OpWrite}})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{a}, eval.paths)
}

func TestStatusRouter(t *testing.T) {
	eval := &fakeEvaluator{}
	s := NewSession(eval, nil, SessionOptions{Logger: quietLogger()})
	dir := t.TempDir()
	file := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	s.HandleBatch(context.Background(), []Change{{Path: file, Op: OpWrite}})

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hooks_tool_runs_total 1\n"))
	})
	router := NewStatusRouter(dir, s, metrics)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/watch/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dir, body.Root)
	assert.Equal(t, 1, body.Passed)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "hooks_tool_runs_total")
}

func TestStatusRouter_NoMetrics(t *testing.T) {
	router := NewStatusRouter(".", NewSession(&fakeEvaluator{}, nil, SessionOptions{}), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
