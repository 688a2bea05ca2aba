// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-evaluates files as they change on disk.
//
// A Watcher turns raw fsnotify events into debounced, deduplicated batches
// of paths. A Session feeds those batches through the diagnose Engine at a
// bounded rate and reports each Verdict.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeOp is the kind of filesystem change.
type ChangeOp int

const (
	OpCreate ChangeOp = iota
	OpWrite
	OpRemove
	OpRename
)

// String returns the op name.
func (op ChangeOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one observed change, after debouncing.
type Change struct {
	Path string
	Op   ChangeOp
	Time time.Time
}

// BatchHandler receives each flushed batch. It runs on the watcher's
// goroutine; a slow handler delays the next batch, not event intake.
type BatchHandler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is flushed.
	Debounce time.Duration

	// Ignore holds directory or file base names and glob patterns.
	Ignore []string

	// BufferSize bounds queued events between reader and debouncer.
	BufferSize int

	Logger *slog.Logger
}

// DefaultOptions returns the shipped watcher settings.
func DefaultOptions() Options {
	return Options{
		Debounce:   300 * time.Millisecond,
		Ignore:     []string{".git", "node_modules", "__pycache__", ".idea", ".venv", "*.swp", "*.tmp", "*~"},
		BufferSize: 1024,
	}
}

// Watcher watches a directory tree.
//
// Thread Safety: Run must be called once. Other methods are not exported.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	opts    Options
	handler BatchHandler
	logger  *slog.Logger
	changes chan Change
}

// NewWatcher creates a watcher over root.
//
// Errors:
//
//	fs.ErrNotExist - root does not exist
//	Any fsnotify initialization error
func NewWatcher(root string, handler BatchHandler, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s: not a directory", root)
	}

	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	if opts.Ignore == nil {
		opts.Ignore = defaults.Ignore
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:    root,
		fsw:     fsw,
		opts:    opts,
		handler: handler,
		logger:  logger,
		changes: make(chan Change, opts.BufferSize),
	}, nil
}

// Run watches until ctx is done and returns nil. A batch in flight sees
// the cancellation; changes still waiting for the debounce are dropped.
// It closes the underlying fsnotify watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("watching", slog.String("root", w.root))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.debounceLoop(ctx)
	}()

	w.readEvents(ctx)
	<-done
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored matches each pattern against the base name and against every
// path component below the root.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, pattern := range w.opts.Ignore {
		for _, part := range parts {
			if part == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) readEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watch new directory failed", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			select {
			case w.changes <- Change{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}:
			default:
				w.logger.Warn("change buffer full, dropping event", slog.String("path", event.Name))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("fsnotify queue overflow, changes may be missed")
				continue
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) ChangeOp {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(ctx, dedupeChanges(batch))
		}
		batch = nil
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			// No evaluation starts after cancellation. Pending changes are dropped.
			pending := len(batch) + len(w.changes)
			if timer != nil {
				timer.Stop()
			}
			if pending > 0 {
				w.logger.Debug("dropping pending changes on shutdown", slog.Int("count", pending))
			}
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			if ctx.Err() != nil {
				continue
			}
			flush()
		}
	}
}

// dedupeChanges keeps one change per path, in first-seen order, carrying
// the latest op.
func dedupeChanges(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	result := make([]Change, 0, len(changes))
	for _, c := range changes {
		if idx, ok := seen[c.Path]; ok {
			result[idx] = c
			continue
		}
		seen[c.Path] = len(result)
		result = append(result, c)
	}
	return result
}
