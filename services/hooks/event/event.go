// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package event adapts agent hook events to the diagnose and format engines.
//
// A hook receives one JSON event on stdin and must answer with one JSON
// response on stdout. Two event layouts are accepted:
//
//	{"tool": "Write", "input": {"file_path": "..."}}
//	{"tool_name": "Edit", "tool_input": {"file_path": "..."}, "hook_event_name": "PostToolUse", ...}
//
// The response always allows the tool call; findings travel in "message".
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/AleutianAI/AleutianHooks/pkg/validation"
)

// MaxEventSize bounds how much of stdin is read.
const MaxEventSize = 1 << 20

var (
	// ErrEventTooLarge indicates stdin exceeded MaxEventSize.
	ErrEventTooLarge = errors.New("hook event exceeds size limit")

	// ErrMalformedEvent indicates stdin was not a JSON object.
	ErrMalformedEvent = errors.New("malformed hook event")
)

// fileTools are the tool names whose events carry a modified file.
var fileTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
}

// Event is a decoded hook event.
type Event struct {
	// Tool is the agent tool that fired the hook (e.g. "Edit").
	Tool string

	// FilePath is tool_input.file_path, resolved against Cwd when relative.
	FilePath string

	HookEventName string
	SessionID     string
	Cwd           string
}

type toolInput struct {
	FilePath string `json:"file_path"`
}

type rawEvent struct {
	Tool  string     `json:"tool"`
	Input *toolInput `json:"input"`

	ToolName      string     `json:"tool_name"`
	ToolInput     *toolInput `json:"tool_input"`
	HookEventName string     `json:"hook_event_name"`
	SessionID     string     `json:"session_id"`
	Cwd           string     `json:"cwd"`
}

// Decode reads one event from r.
//
// Inputs:
//
//	r - Usually os.Stdin. At most MaxEventSize bytes are read.
//
// Outputs:
//
//	Event - The decoded event
//	error - Non-nil if the input is too large or not a JSON object
//
// Errors:
//
//	ErrEventTooLarge - More than MaxEventSize bytes available
//	ErrMalformedEvent - Empty input or invalid JSON
func Decode(r io.Reader) (Event, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxEventSize+1))
	if err != nil {
		return Event{}, fmt.Errorf("reading hook event: %w", err)
	}
	if len(data) > MaxEventSize {
		return Event{}, fmt.Errorf("%w (%d bytes)", ErrEventTooLarge, MaxEventSize)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Event{}, fmt.Errorf("%w: empty input", ErrMalformedEvent)
	}

	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := Event{
		Tool:          raw.ToolName,
		HookEventName: raw.HookEventName,
		SessionID:     raw.SessionID,
		Cwd:           raw.Cwd,
	}
	if ev.Tool == "" {
		ev.Tool = raw.Tool
	}

	switch {
	case raw.ToolInput != nil && raw.ToolInput.FilePath != "":
		ev.FilePath = raw.ToolInput.FilePath
	case raw.Input != nil:
		ev.FilePath = raw.Input.FilePath
	}
	if ev.FilePath != "" {
		if err := validation.ValidateFilePath(ev.FilePath); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.Cwd != "" && !filepath.IsAbs(ev.FilePath) {
			ev.FilePath = filepath.Join(ev.Cwd, ev.FilePath)
		}
	}
	return ev, nil
}

// Target returns the modified file when the event came from a
// file-writing tool.
func (e Event) Target() (string, bool) {
	if !fileTools[e.Tool] || e.FilePath == "" {
		return "", false
	}
	return e.FilePath, true
}
