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
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// maxStderrLines is how many non-blank stderr lines are considered.
	maxStderrLines = 5

	// maxStdoutLines is how many non-blank stdout lines are kept.
	maxStdoutLines = 3

	unknownLine    = "?"
	unknownRule    = "unknown-rule"
	unknownMessage = "Unknown error"
)

// =============================================================================
// NORMALIZE
// =============================================================================

// Normalize converts one RunOutcome into Diagnostics.
//
// Description:
//
//	Returns nothing for a zero exit. A timeout, launch failure or
//	cancellation yields exactly one Diagnostic. Otherwise the declared
//	spec.Shape selects the decoder:
//
//	  - ShapeStructuredFindings: JSON array of findings, one Diagnostic each.
//	    A JSON object instead of an array yields one generic Diagnostic.
//	  - ShapeOpaqueStructured: valid JSON yields one generic Diagnostic.
//	  - ShapeFreeText: filtered stderr head, else stdout head.
//
//	JSON that fails to decode falls back to the free-text path. A failed
//	run that still produced nothing gets an "exited with code N" line, so a
//	failing tool never reads as clean.
//
// Inputs:
//
//	outcome - The raw run result
//	spec - The tool that produced it (label and declared shape)
//	filePath - The evaluated file, used for stderr filtering
//
// Outputs:
//
//	[]Diagnostic - In tool output order, each tagged with spec.Label
func Normalize(outcome RunOutcome, spec ToolSpec, filePath string) []Diagnostic {
	if outcome.ExitedZero {
		return nil
	}

	label := spec.Label
	if label == "" {
		label = outcome.Label
	}

	if outcome.Faulted() {
		return []Diagnostic{{Tool: label, Text: faultText(outcome), Fault: true}}
	}

	var diags []Diagnostic
	switch spec.Shape {
	case ShapeStructuredFindings:
		diags = structuredDiagnostics(label, outcome, filePath)
	case ShapeOpaqueStructured:
		diags = opaqueDiagnostics(label, outcome, filePath)
	default:
		diags = freeTextDiagnostics(label, outcome, filePath)
	}

	if len(diags) == 0 {
		diags = []Diagnostic{{Tool: label, Text: fmt.Sprintf("exited with code %d", outcome.ExitCode)}}
	}
	return diags
}

func faultText(o RunOutcome) string {
	if msg := strings.TrimSpace(o.Stderr); msg != "" {
		return firstLine(msg)
	}
	switch {
	case o.TimedOut:
		return "timed out"
	case o.Canceled:
		return "canceled before completion"
	default:
		return "failed to start"
	}
}

// =============================================================================
// STRUCTURED FINDINGS
// =============================================================================

// findingRecord accepts both layouts seen in the wild: ESLint's per-file
// records carrying a messages array, and flat per-issue records (pylint).
type findingRecord struct {
	FilePath string           `json:"filePath"`
	Messages []findingMessage `json:"messages"`

	Line      json.Number `json:"line"`
	Message   *string     `json:"message"`
	RuleID    *string     `json:"ruleId"`
	Symbol    string      `json:"symbol"`
	MessageID string      `json:"message-id"`
}

type findingMessage struct {
	Line    json.Number `json:"line"`
	Message *string     `json:"message"`
	RuleID  *string     `json:"ruleId"`
}

func structuredDiagnostics(label string, o RunOutcome, filePath string) []Diagnostic {
	data := bytes.TrimSpace([]byte(o.Stdout))
	if len(data) == 0 {
		return freeTextDiagnostics(label, o, filePath)
	}

	switch data[0] {
	case '[':
		records, err := decodeFindings(data)
		if err != nil {
			return freeTextDiagnostics(label, o, filePath)
		}
		var diags []Diagnostic
		for _, rec := range records {
			if rec.Messages != nil {
				for _, m := range rec.Messages {
					diags = append(diags, findingDiagnostic(label, m.Line, m.Message, m.RuleID))
				}
				continue
			}
			if rec.Message != nil {
				rule := rec.RuleID
				if rule == nil || *rule == "" {
					rule = firstNonEmpty(rec.Symbol, rec.MessageID)
				}
				diags = append(diags, findingDiagnostic(label, rec.Line, rec.Message, rule))
			}
		}
		if len(diags) == 0 {
			// Valid but empty findings on a failing run: the reason is usually
			// a config or crash report on stderr.
			return freeTextDiagnostics(label, o, filePath)
		}
		return diags
	case '{':
		if !json.Valid(data) {
			return freeTextDiagnostics(label, o, filePath)
		}
		return []Diagnostic{genericDiagnostic(label, filePath)}
	default:
		return freeTextDiagnostics(label, o, filePath)
	}
}

func decodeFindings(data []byte) ([]findingRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []findingRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return records, nil
}

func findingDiagnostic(label string, line json.Number, message, rule *string) Diagnostic {
	d := Diagnostic{Tool: label}

	lineText := unknownLine
	if n, err := strconv.Atoi(line.String()); err == nil {
		d.Line = n
		lineText = strconv.Itoa(n)
	}

	msg := unknownMessage
	if message != nil && *message != "" {
		msg = *message
	}

	d.Rule = unknownRule
	if rule != nil && *rule != "" {
		d.Rule = *rule
	}

	d.Text = fmt.Sprintf("Line %s: %s (%s)", lineText, msg, d.Rule)
	return d
}

// =============================================================================
// OPAQUE STRUCTURED
// =============================================================================

func opaqueDiagnostics(label string, o RunOutcome, filePath string) []Diagnostic {
	data := bytes.TrimSpace([]byte(o.Stdout))
	if len(data) == 0 || !json.Valid(data) {
		return freeTextDiagnostics(label, o, filePath)
	}
	return []Diagnostic{genericDiagnostic(label, filePath)}
}

func genericDiagnostic(label, filePath string) Diagnostic {
	return Diagnostic{
		Tool: label,
		Text: "Linting issues detected in " + filepath.Base(filePath),
	}
}

// =============================================================================
// FREE TEXT
// =============================================================================

// freeTextDiagnostics takes the first five non-blank stderr lines and keeps
// those that name the file or mention an error or warning. Many CLIs print
// banners before findings; the filter drops them. When stderr yields
// nothing, the first three non-blank stdout lines are used instead.
func freeTextDiagnostics(label string, o RunOutcome, filePath string) []Diagnostic {
	var diags []Diagnostic

	for _, line := range nonBlankLines(o.Stderr, maxStderrLines) {
		if mentionsProblem(line, filePath) {
			diags = append(diags, Diagnostic{Tool: label, Text: line})
		}
	}
	if len(diags) > 0 {
		return diags
	}

	for _, line := range nonBlankLines(o.Stdout, maxStdoutLines) {
		diags = append(diags, Diagnostic{Tool: label, Text: line})
	}
	return diags
}

func mentionsProblem(line, filePath string) bool {
	if filePath != "" && strings.Contains(line, filePath) {
		return true
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "warning")
}

// nonBlankLines returns up to limit trimmed, non-blank lines of s.
func nonBlankLines(s string, limit int) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == limit {
			break
		}
	}
	return lines
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}
