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
	"errors"
	"fmt"
)

// Sentinel errors for the diagnose package.
//
// None of these leave Engine.Evaluate. They classify faults for logging,
// registry validation and configuration loading.
var (
	// ErrToolNotInstalled indicates the tool binary was not found in PATH.
	ErrToolNotInstalled = errors.New("tool not installed")

	// ErrToolTimeout indicates the tool exceeded its wall-clock budget.
	ErrToolTimeout = errors.New("tool timeout")

	// ErrToolLaunch indicates the process could not be started.
	ErrToolLaunch = errors.New("tool launch failed")

	// ErrMalformedOutput indicates declared structured output did not decode.
	ErrMalformedOutput = errors.New("malformed tool output")

	// ErrOverlappingExtensions indicates two rules claim the same extension.
	ErrOverlappingExtensions = errors.New("extension claimed by more than one rule")

	// ErrDuplicateLabel indicates two tools in one rule category share a label.
	ErrDuplicateLabel = errors.New("duplicate tool label")

	// ErrInvalidInput indicates invalid input to a diagnose function.
	ErrInvalidInput = errors.New("invalid input")
)

// ToolError wraps a fault from a specific tool with context.
//
// Thread Safety: Immutable after creation.
type ToolError struct {
	// Tool is the executable name (e.g. "npx").
	Tool string

	// Label is the ToolSpec label (e.g. "ESLint analysis").
	Label string

	// Err is the underlying error.
	Err error

	// Output carries stderr captured before the fault, if any.
	Output string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s (%s): %v: %s", e.Label, e.Tool, e.Err, e.Output)
	}
	return fmt.Sprintf("%s (%s): %v", e.Label, e.Tool, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a ToolError for spec.
func NewToolError(spec ToolSpec, err error) *ToolError {
	return &ToolError{
		Tool:  spec.Executable(),
		Label: spec.Label,
		Err:   err,
	}
}

// WithOutput returns a copy of the error carrying output.
func (e *ToolError) WithOutput(output string) *ToolError {
	return &ToolError{
		Tool:   e.Tool,
		Label:  e.Label,
		Err:    e.Err,
		Output: output,
	}
}
