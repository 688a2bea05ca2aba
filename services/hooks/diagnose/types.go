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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianHooks/pkg/validation"
)

// =============================================================================
// OUTPUT SHAPE
// =============================================================================

// OutputShape declares what a tool prints when it finds problems.
//
// The Normalizer dispatches on this value instead of sniffing tool names or
// content. Sniffing is only used as a fallback when declared JSON fails to
// decode.
type OutputShape int

const (
	// ShapeFreeText is human-oriented text (type checkers, diff printers).
	ShapeFreeText OutputShape = iota

	// ShapeStructuredFindings is a JSON list of finding records.
	ShapeStructuredFindings

	// ShapeOpaqueStructured is JSON that confirms problems exist without
	// exposing them in a shape we read.
	ShapeOpaqueStructured
)

// String returns the configuration name of the shape.
func (s OutputShape) String() string {
	switch s {
	case ShapeFreeText:
		return "text"
	case ShapeStructuredFindings:
		return "findings"
	case ShapeOpaqueStructured:
		return "opaque"
	default:
		return "unknown"
	}
}

// ParseOutputShape parses a configuration name. Empty means ShapeFreeText.
func ParseOutputShape(s string) (OutputShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "free_text":
		return ShapeFreeText, nil
	case "findings", "structured_findings":
		return ShapeStructuredFindings, nil
	case "opaque", "opaque_structured":
		return ShapeOpaqueStructured, nil
	default:
		return ShapeFreeText, fmt.Errorf("%w: unknown output shape %q", ErrInvalidInput, s)
	}
}

// =============================================================================
// TOOL SPEC / EXTENSION RULE
// =============================================================================

// ToolSpec describes one external diagnostic command.
//
// The file path is appended to Command at run time. Formatters must carry
// their own check-only flags; the Runner does not enforce read-only use.
//
// Thread Safety: Treat as immutable after creation.
type ToolSpec struct {
	// Command is the argv prefix, e.g. []string{"npx", "eslint", "--format", "json"}.
	Command []string

	// Label is the human name used to prefix every Diagnostic.
	Label string

	// Shape is the declared output shape.
	Shape OutputShape
}

// Executable returns the command name that must resolve on PATH.
func (s ToolSpec) Executable() string {
	if len(s.Command) == 0 {
		return ""
	}
	return s.Command[0]
}

// Argv returns Command followed by filePath, in a fresh slice. A path
// beginning with "-" is prefixed with "./" so tools read it as a file.
func (s ToolSpec) Argv(filePath string) []string {
	argv := make([]string, 0, len(s.Command)+1)
	argv = append(argv, s.Command...)
	return append(argv, validation.PathArg(filePath))
}

// Clone returns a deep copy of the spec.
func (s ToolSpec) Clone() ToolSpec {
	cmd := make([]string, len(s.Command))
	copy(cmd, s.Command)
	return ToolSpec{Command: cmd, Label: s.Label, Shape: s.Shape}
}

// ExtensionRule maps a set of file suffixes to ordered linters and formatters.
//
// Thread Safety: Treat as immutable after creation.
type ExtensionRule struct {
	// Name identifies the rule in logs and validation errors (e.g. "python").
	Name string

	// Extensions are suffixes including the dot, e.g. ".ts".
	Extensions []string

	// Linters run first, in order.
	Linters []ToolSpec

	// Formatters run after linters, in check-only mode.
	Formatters []ToolSpec
}

// Matches reports whether filePath ends with one of the rule's extensions.
func (r ExtensionRule) Matches(filePath string) bool {
	for _, ext := range r.Extensions {
		if ext != "" && strings.HasSuffix(filePath, ext) {
			return true
		}
	}
	return false
}

// Tools returns linters followed by formatters.
func (r ExtensionRule) Tools() []ToolSpec {
	tools := make([]ToolSpec, 0, len(r.Linters)+len(r.Formatters))
	tools = append(tools, r.Linters...)
	return append(tools, r.Formatters...)
}

// Clone returns a deep copy of the rule.
func (r ExtensionRule) Clone() ExtensionRule {
	clone := ExtensionRule{
		Name:       r.Name,
		Extensions: make([]string, len(r.Extensions)),
		Linters:    make([]ToolSpec, 0, len(r.Linters)),
		Formatters: make([]ToolSpec, 0, len(r.Formatters)),
	}
	copy(clone.Extensions, r.Extensions)
	for _, t := range r.Linters {
		clone.Linters = append(clone.Linters, t.Clone())
	}
	for _, t := range r.Formatters {
		clone.Formatters = append(clone.Formatters, t.Clone())
	}
	return clone
}

// =============================================================================
// RUN OUTCOME
// =============================================================================

// RunOutcome is the raw result of one tool invocation.
//
// A non-zero exit is a normal "issues found" signal, not a fault. Faults the
// Runner absorbed are flagged by TimedOut, LaunchFailed and Canceled, with an
// explanation in Stderr.
//
// Thread Safety: Immutable after creation by the Runner.
type RunOutcome struct {
	Label      string
	ExitedZero bool
	Stdout     string
	Stderr     string
	ExitCode   int

	// TimedOut is set when the per-tool timeout killed the process.
	TimedOut bool

	// ToolMissing is set when the binary vanished between probe and launch.
	ToolMissing bool

	// LaunchFailed is set when the process could not be started at all.
	LaunchFailed bool

	// Canceled is set when the caller's context ended the run.
	Canceled bool

	Duration time.Duration
}

// Faulted reports whether the run ended for a reason other than the tool's
// own exit status.
func (o RunOutcome) Faulted() bool {
	return o.TimedOut || o.LaunchFailed || o.Canceled
}

// =============================================================================
// DIAGNOSTIC
// =============================================================================

// Diagnostic is one human-readable line attributed to a tool.
type Diagnostic struct {
	// Tool is the ToolSpec label that produced the line.
	Tool string `json:"tool"`

	// Line is the 1-indexed source line, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Rule is the rule identifier when the tool supplied one.
	Rule string `json:"rule,omitempty"`

	// Text is the detail after the tool prefix.
	Text string `json:"text"`

	// Fault marks a diagnostic about the tool run itself (timeout, launch
	// failure, cancellation) rather than about the file.
	Fault bool `json:"fault,omitempty"`
}

// String renders "<tool label>: <detail>".
func (d Diagnostic) String() string {
	return d.Tool + ": " + d.Text
}

// =============================================================================
// VERDICT
// =============================================================================

// NoCheckReason explains why a Verdict ran zero tools.
type NoCheckReason int

const (
	// ReasonNone means at least one tool ran.
	ReasonNone NoCheckReason = iota

	// ReasonUnrecognized means no ExtensionRule matched the file.
	ReasonUnrecognized

	// ReasonUnavailable means a rule matched but every tool was missing.
	ReasonUnavailable

	// ReasonFileMissing means the target file did not exist.
	ReasonFileMissing
)

// String returns a stable name for logs and JSON.
func (r NoCheckReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnrecognized:
		return "unrecognized_file_type"
	case ReasonUnavailable:
		return "tools_unavailable"
	case ReasonFileMissing:
		return "file_missing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r NoCheckReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *NoCheckReason) UnmarshalText(text []byte) error {
	for _, candidate := range []NoCheckReason{ReasonNone, ReasonUnrecognized, ReasonUnavailable, ReasonFileMissing} {
		if candidate.String() == string(text) {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: no-check reason %q", ErrInvalidInput, text)
}

// Verdict is the pass/fail result of evaluating one file.
//
// OK means "no diagnostics", which includes the unchecked case. Use Checked
// to tell a clean result apart from one where nothing ran.
//
// Thread Safety: Immutable after Engine.Evaluate returns it.
type Verdict struct {
	// File is the evaluated path.
	File string `json:"file"`

	// Rule is the matched ExtensionRule name, empty if none matched.
	Rule string `json:"rule,omitempty"`

	OK bool `json:"ok"`

	// Diagnostics holds every diagnostic in registry order, deduplicated.
	Diagnostics []Diagnostic `json:"diagnostics"`

	// ToolsRun counts tools that were actually executed.
	ToolsRun int `json:"tools_run"`

	// ToolsSkipped counts tools skipped as unavailable.
	ToolsSkipped int `json:"tools_skipped"`

	// TruncatedCount is how many diagnostics the rendered message omits.
	TruncatedCount int `json:"truncated_count"`

	// Inconclusive is set when the caller's deadline cut evaluation short.
	Inconclusive bool `json:"inconclusive,omitempty"`

	// Reason explains a zero ToolsRun.
	Reason NoCheckReason `json:"reason"`

	// MaxShown is the display cap applied by Message. It travels with the
	// Verdict so TruncatedCount stays consistent after a round trip.
	MaxShown int `json:"max_shown,omitempty"`
}

// Checked reports whether at least one tool ran.
func (v Verdict) Checked() bool {
	return v.ToolsRun > 0
}

// Shown returns the diagnostics the rendered message includes.
func (v Verdict) Shown() []Diagnostic {
	limit := v.MaxShown
	if limit <= 0 {
		limit = DefaultMaxDiagnostics
	}
	if len(v.Diagnostics) <= limit {
		return v.Diagnostics
	}
	return v.Diagnostics[:limit]
}
