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
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

// Evaluator produces a Verdict for one file. *diagnose.Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, filePath string) diagnose.Verdict
	Registry() *diagnose.Registry
}

// ReportFunc receives each Verdict produced by a Session.
type ReportFunc func(diagnose.Verdict)

// Stats counts what a Session has evaluated. Passed and Failed together
// are the files at least one tool checked.
type Stats struct {
	Passed    int
	Failed    int
	Unchecked int
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Rate is evaluations per second. Zero or negative means unlimited.
	Rate float64

	// Burst is the limiter bucket size. Defaults to 1.
	Burst int

	// Deadline bounds a single file evaluation. Zero means none.
	Deadline time.Duration

	Logger *slog.Logger
}

// Session evaluates changed files through an Evaluator.
//
// Thread Safety: HandleBatch may be called from one goroutine at a time.
// Stats is safe for concurrent use.
type Session struct {
	eval     Evaluator
	report   ReportFunc
	limiter  *rate.Limiter
	deadline time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSession creates a Session. report may be nil.
func NewSession(eval Evaluator, report ReportFunc, opts SessionOptions) *Session {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		eval:     eval,
		report:   report,
		limiter:  rate.NewLimiter(limit, burst),
		deadline: opts.Deadline,
		logger:   logger,
	}
}

// HandleBatch is a BatchHandler. Removed files, directories and files no
// rule covers are skipped.
func (s *Session) HandleBatch(ctx context.Context, changes []Change) {
	for _, c := range changes {
		if !s.wants(c) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("evaluation rate wait aborted",
				slog.String("path", c.Path),
				slog.String("error", err.Error()))
			return
		}
		s.evaluate(ctx, c.Path)
	}
}

func (s *Session) wants(c Change) bool {
	if c.Op == OpRemove || c.Op == OpRename {
		return false
	}
	if _, ok := s.eval.Registry().Lookup(c.Path); !ok {
		return false
	}
	info, err := os.Stat(c.Path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return true
}

func (s *Session) evaluate(ctx context.Context, path string) {
	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	v := s.eval.Evaluate(ctx, path)

	s.mu.Lock()
	switch {
	case len(v.Diagnostics) > 0:
		s.stats.Failed++
	case v.Checked():
		s.stats.Passed++
	default:
		s.stats.Unchecked++
	}
	s.mu.Unlock()

	if s.report != nil {
		s.report(v)
	}
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
