// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

import (
	"encoding/json"
	"io"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
	"github.com/AleutianAI/AleutianHooks/services/hooks/format"
)

// ActionAllow is the only action hooks return.
const ActionAllow = "allow"

// Message prefixes.
const (
	PrefixOK          = "🦇 Batcave: "
	PrefixAlert       = "🦇 Batcave Alert: "
	PrefixFormat      = "🦇 Batcave Auto-Format: "
	PrefixLintError   = "🦇 Batcave Linter System Error: "
	PrefixFormatError = "🦇 Batcave Auto-Format System Error: "
)

// Response is the hook's answer on stdout.
type Response struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// Allow returns an allow response with an optional message.
func Allow(message string) Response {
	return Response{Action: ActionAllow, Message: message}
}

// LintResponse wraps a Verdict. Verdicts with diagnostics are alerts.
func LintResponse(v diagnose.Verdict) Response {
	if len(v.Diagnostics) > 0 {
		return Allow(PrefixAlert + "🚨 " + v.Message())
	}
	if v.Checked() {
		return Allow(PrefixOK + "✅ " + v.Message())
	}
	return Allow(PrefixOK + v.Message())
}

// FormatResponse wraps a format Result.
func FormatResponse(r format.Result) Response {
	return Allow(PrefixFormat + r.Message)
}

// SystemError reports a hook fault without blocking the tool call.
func SystemError(prefix string, err error) Response {
	return Allow(prefix + err.Error())
}

// Write encodes resp as one JSON line.
func Write(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}
