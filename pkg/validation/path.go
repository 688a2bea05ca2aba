// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks inputs that end up in subprocess argument
// lists.
//
// Tools are launched with an argv, never through a shell, so quoting is not
// a concern. Option injection is: a file named "-rf.py" would be read as a
// flag by most linters.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths that cannot be passed to a tool.
var ErrInvalidPath = errors.New("invalid file path")

// ValidateFilePath rejects paths no tool could be handed safely.
//
// Invalid paths:
//   - empty
//   - containing a NUL byte (truncated by exec)
//   - containing a newline (breaks line-oriented tool output)
//
// Example:
//
//	if err := validation.ValidateFilePath(ev.FilePath); err != nil {
//	    return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
//	}
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidPath)
	}
	if strings.ContainsAny(path, "\n\r") {
		return fmt.Errorf("%w: contains newline: %q", ErrInvalidPath, path)
	}
	return nil
}

// PathArg returns path in a form no tool will parse as an option.
// Relative paths starting with "-" get a "./" prefix; everything else is
// returned unchanged.
func PathArg(path string) string {
	if strings.HasPrefix(path, "-") {
		return "." + string(filepath.Separator) + path
	}
	return path
}
