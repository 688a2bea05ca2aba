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
	"path/filepath"
	"strings"
)

// Bullet prefixes each rendered diagnostic line.
const Bullet = "  • "

// inconclusiveNote is appended when the outer deadline cut evaluation short.
const inconclusiveNote = "(inconclusive: deadline exceeded before all checks finished)"

// Message renders the Verdict as hook-facing text.
//
// Description:
//
//	Diagnostics:   "LINTING ERRORS in <base>:" then one bullet per shown
//	               diagnostic and "...and N more" when truncated.
//	Clean:         "<base>: All <n> linting checks passed"
//	Unrecognized:  "<base>: No linters configured for this file type (no checks performed)"
//	Unavailable:   "<base>: No linters available for this file type (no checks performed)"
//	File missing:  "<base>: File not found for linting"
//
//	An inconclusive Verdict gets a trailing note so it is never mistaken
//	for a clean one.
func (v Verdict) Message() string {
	base := filepath.Base(v.File)

	var b strings.Builder
	switch {
	case len(v.Diagnostics) > 0:
		fmt.Fprintf(&b, "LINTING ERRORS in %s:", base)
		for _, d := range v.Shown() {
			b.WriteString("\n")
			b.WriteString(Bullet)
			b.WriteString(d.String())
		}
		if v.TruncatedCount > 0 {
			fmt.Fprintf(&b, "\n%s...and %d more", Bullet, v.TruncatedCount)
		}
	case v.ToolsRun > 0:
		fmt.Fprintf(&b, "%s: All %d linting checks passed", base, v.ToolsRun)
	default:
		b.WriteString(base)
		b.WriteString(": ")
		b.WriteString(v.NoCheckMessage())
	}

	if v.Inconclusive {
		b.WriteString("\n")
		b.WriteString(inconclusiveNote)
	}
	return b.String()
}

// NoCheckMessage explains a Verdict that ran nothing. Empty when tools ran.
func (v Verdict) NoCheckMessage() string {
	switch v.Reason {
	case ReasonUnrecognized:
		return "No linters configured for this file type (no checks performed)"
	case ReasonUnavailable:
		return "No linters available for this file type (no checks performed)"
	case ReasonFileMissing:
		return "File not found for linting"
	}
	if v.ToolsRun == 0 {
		return "no checks performed"
	}
	return ""
}
