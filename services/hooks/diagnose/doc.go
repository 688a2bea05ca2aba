// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnose runs external linters and format checkers against a single
// file and reduces their output to one advisory Verdict.
//
// The package never analyses source code itself. It delegates to established
// tools (tsc, eslint, prettier, flake8, mypy, pylint, black) and only
// normalizes what they print.
//
// # Architecture
//
// Evaluation flows one way:
//
//	path → Registry.Lookup → Prober → Runner → Normalize → Engine → Verdict
//
//   - Registry: immutable, ordered extension rules. First match wins.
//   - Prober: resolves a command on PATH without executing it.
//   - Runner: executes one tool with a hard timeout; always returns a RunOutcome.
//   - Normalize: turns a RunOutcome into Diagnostics, dispatching on the
//     OutputShape declared by the ToolSpec.
//   - Engine: drives the above and builds the Verdict.
//
// # Output Shapes
//
//	| Shape               | Example             | Handling                          |
//	|---------------------|---------------------|-----------------------------------|
//	| StructuredFindings  | eslint --format json| one Diagnostic per finding        |
//	| OpaqueStructured    | flake8 --format=json| one generic Diagnostic            |
//	| FreeText            | tsc, mypy, black    | filtered stderr, else stdout head |
//
// # Failure Model
//
// Nothing escapes Engine.Evaluate. A missing tool is skipped, a timeout or a
// launch failure becomes exactly one Diagnostic, and malformed JSON falls back
// to the free-text path. Callers always receive a Verdict.
//
// # Usage
//
//	engine := diagnose.NewEngine(diagnose.DefaultRegistry())
//	verdict := engine.Evaluate(ctx, "/abs/path/app.ts")
//	fmt.Println(verdict.Message())
//
// # Thread Safety
//
// Registry and Engine are immutable after construction and safe for
// concurrent use.
package diagnose
