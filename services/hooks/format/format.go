// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format runs write-mode formatters on files an agent just modified.
//
// Unlike the diagnose engine, formatters here rewrite the file in place.
// Only the first matching entry is used and only its one command runs.
//
// Thread Safety: Formatter is safe for concurrent use.
package format

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

// Entry maps file suffixes to one write-mode command.
type Entry struct {
	Extensions []string
	Command    []string
}

// Name returns the formatter executable.
func (e Entry) Name() string {
	if len(e.Command) == 0 {
		return ""
	}
	return e.Command[0]
}

func (e Entry) spec() diagnose.ToolSpec {
	return diagnose.ToolSpec{Command: e.Command, Label: e.Name(), Shape: diagnose.ShapeFreeText}
}

// Table is an ordered list of entries. First match wins.
type Table []Entry

// DefaultTable returns the shipped formatter table.
func DefaultTable() Table {
	prettier := []string{"prettier", "--write"}
	return Table{
		{Extensions: []string{".js", ".jsx", ".ts", ".tsx"}, Command: prettier},
		{Extensions: []string{".json"}, Command: prettier},
		{Extensions: []string{".py"}, Command: []string{"black"}},
		{Extensions: []string{".go"}, Command: []string{"gofmt", "-w"}},
		{Extensions: []string{".rs"}, Command: []string{"rustfmt"}},
		{Extensions: []string{".rb"}, Command: []string{"rubocop", "-a"}},
		{Extensions: []string{".css", ".scss", ".sass"}, Command: prettier},
		{Extensions: []string{".md"}, Command: prettier},
		{Extensions: []string{".yml", ".yaml"}, Command: prettier},
	}
}

// Lookup returns the first entry whose extensions suffix-match path.
func (t Table) Lookup(path string) (Entry, bool) {
	for _, e := range t {
		for _, ext := range e.Extensions {
			if ext != "" && strings.HasSuffix(path, ext) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Result is the outcome of formatting one file.
type Result struct {
	// OK is false when a formatter was expected to run and did not succeed.
	OK bool `json:"ok"`

	// Formatted is set when the formatter ran and exited zero.
	Formatted bool `json:"formatted"`

	// Tool is the formatter executable, empty when none matched.
	Tool string `json:"tool,omitempty"`

	Message string `json:"message"`
}

// Formatter applies Table entries through the diagnose Prober and Runner.
type Formatter struct {
	table   Table
	prober  diagnose.Prober
	runner  diagnose.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithProber replaces the PATH prober.
func WithProber(p diagnose.Prober) Option {
	return func(f *Formatter) {
		if p != nil {
			f.prober = p
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r diagnose.Runner) Option {
	return func(f *Formatter) {
		if r != nil {
			f.runner = r
		}
	}
}

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Formatter) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Formatter) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Formatter. A nil or empty table means DefaultTable.
func New(table Table, opts ...Option) *Formatter {
	if len(table) == 0 {
		table = DefaultTable()
	}
	f := &Formatter{
		table:   table,
		prober:  diagnose.NewPathProber(),
		runner:  diagnose.NewExecRunner(),
		timeout: diagnose.DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format rewrites path in place with its configured formatter.
//
// Description:
//
//	A missing file, a missing formatter, a timeout or a non-zero exit each
//	produce OK=false with a message for the agent. A file type with no
//	formatter is OK with nothing done.
//
// Inputs:
//
//	ctx - Cancels the formatter process
//	path - File to format
//
// Outputs:
//
//	Result - Always populated
func (f *Formatter) Format(ctx context.Context, path string) Result {
	base := filepath.Base(path)
	logger := f.logger.With(slog.String("file", path))

	if _, err := os.Stat(path); err != nil {
		return Result{Message: "File not found: " + base}
	}

	entry, ok := f.table.Lookup(path)
	if !ok {
		return Result{OK: true, Message: "No formatter configured for " + base}
	}
	name := entry.Name()

	if avail := f.prober.Probe(name); !avail.Available {
		logger.Debug("formatter not installed", slog.String("tool", name), slog.String("reason", avail.Reason.String()))
		return Result{Tool: name, Message: fmt.Sprintf("⚠️ Formatter %s not installed for %s", name, base)}
	}

	out := f.runner.Run(ctx, entry.spec(), path, f.timeout)
	logger.Info("formatter finished",
		slog.String("tool", name),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("duration", out.Duration),
	)

	switch {
	case out.ExitedZero:
		return Result{OK: true, Formatted: true, Tool: name,
			Message: fmt.Sprintf("✅ %s: Formatted with %s", base, name)}
	case out.TimedOut:
		return Result{Tool: name,
			Message: fmt.Sprintf("🚨 FORMATTING TIMEOUT for %s: %s took too long", base, name)}
	case out.LaunchFailed, out.Canceled:
		return Result{Tool: name,
			Message: fmt.Sprintf("🚨 FORMATTING ERROR for %s: %s %s", base, name, out.Stderr)}
	}

	detail := out.Stderr
	if detail == "" {
		detail = out.Stdout
	}
	if detail == "" {
		detail = "Unknown formatting error"
	}
	return Result{Tool: name, Message: fmt.Sprintf("🚨 FORMATTING FAILED for %s: %s", base, detail)}
}
