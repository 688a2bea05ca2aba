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
	"io/fs"
	"os/exec"
)

// AvailabilityReason says why a command is or is not usable.
type AvailabilityReason int

const (
	// ReasonFound means the command resolved on PATH.
	ReasonFound AvailabilityReason = iota

	// ReasonNotInstalled means PATH holds no such executable.
	ReasonNotInstalled

	// ReasonLookupFailed means resolution failed for another reason,
	// typically a permission problem. Often transient.
	ReasonLookupFailed
)

// String returns the reason name.
func (r AvailabilityReason) String() string {
	switch r {
	case ReasonFound:
		return "found"
	case ReasonNotInstalled:
		return "not_installed"
	case ReasonLookupFailed:
		return "lookup_failed"
	default:
		return "unknown"
	}
}

// Availability is the result of probing one command.
type Availability struct {
	Available bool
	Reason    AvailabilityReason

	// Path is the resolved executable, set when Available.
	Path string

	// Err is the lookup error, set when not Available.
	Err error
}

// Prober decides whether a command can be run on this host.
//
// Implementations must not execute the command and must not fail: absence is
// the expected case on most machines.
type Prober interface {
	Probe(command string) Availability
}

// PathProber resolves commands with exec.LookPath. It caches nothing.
type PathProber struct{}

// NewPathProber returns a PATH-based prober.
func NewPathProber() PathProber {
	return PathProber{}
}

// Probe implements Prober.
func (PathProber) Probe(command string) Availability {
	if command == "" {
		return Availability{Reason: ReasonNotInstalled, Err: ErrInvalidInput}
	}
	path, err := exec.LookPath(command)
	if err == nil {
		return Availability{Available: true, Reason: ReasonFound, Path: path}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return Availability{Reason: ReasonNotInstalled, Err: ErrToolNotInstalled}
	}
	return Availability{Reason: ReasonLookupFailed, Err: err}
}

// IsAvailable is a convenience wrapper over Probe.
func IsAvailable(p Prober, command string) bool {
	return p.Probe(command).Available
}
