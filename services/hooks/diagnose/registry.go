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

// =============================================================================
// DEFAULT TOOLS
// =============================================================================

var (
	tscCheck = ToolSpec{
		Command: []string{"npx", "tsc", "--noEmit", "--skipLibCheck"},
		Label:   "TypeScript compiler check",
		Shape:   ShapeFreeText,
	}

	eslintAnalysis = ToolSpec{
		Command: []string{"npx", "eslint", "--format", "json"},
		Label:   "ESLint analysis",
		Shape:   ShapeStructuredFindings,
	}

	prettierCheck = ToolSpec{
		Command: []string{"npx", "prettier", "--check"},
		Label:   "Prettier format check",
		Shape:   ShapeFreeText,
	}

	// flake8's json formatter emits an object keyed by filename.
	flake8Check = ToolSpec{
		Command: []string{"flake8", "--format=json"},
		Label:   "Flake8 style check",
		Shape:   ShapeOpaqueStructured,
	}

	mypyCheck = ToolSpec{
		Command: []string{"mypy", "--show-error-codes", "--no-error-summary"},
		Label:   "MyPy type check",
		Shape:   ShapeFreeText,
	}

	pylintAnalysis = ToolSpec{
		Command: []string{"pylint", "--output-format=json"},
		Label:   "Pylint analysis",
		Shape:   ShapeStructuredFindings,
	}

	blackCheck = ToolSpec{
		Command: []string{"black", "--check", "--diff"},
		Label:   "Black format check",
		Shape:   ShapeFreeText,
	}
)

// DefaultRules returns the shipped rules in priority order.
//
// Description:
//
//	TypeScript, JavaScript and Python. Extension sets are disjoint, which
//	TestDefaultRegistry_Validates pins down.
//
// Outputs:
//
//	[]ExtensionRule - Fresh copies; callers may modify them.
func DefaultRules() []ExtensionRule {
	rules := []ExtensionRule{
		{
			Name:       "typescript",
			Extensions: []string{".ts", ".tsx"},
			Linters:    []ToolSpec{tscCheck, eslintAnalysis},
			Formatters: []ToolSpec{prettierCheck},
		},
		{
			Name:       "javascript",
			Extensions: []string{".js", ".jsx"},
			Linters:    []ToolSpec{eslintAnalysis},
			Formatters: []ToolSpec{prettierCheck},
		},
		{
			Name:       "python",
			Extensions: []string{".py"},
			Linters:    []ToolSpec{flake8Check, mypyCheck, pylintAnalysis},
			Formatters: []ToolSpec{blackCheck},
		},
	}
	for i := range rules {
		rules[i] = rules[i].Clone()
	}
	return rules
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an immutable, ordered list of extension rules.
//
// Description:
//
//	Built once at process start and passed into the Engine. Lookup walks
//	the rules in order and returns the first match, so rule order is the
//	documented priority when extension sets overlap. Validate reports any
//	overlap so shipped and user configurations can reject it up front.
//
// Thread Safety: Safe for concurrent use; nothing mutates after NewRegistry.
type Registry struct {
	rules []ExtensionRule
}

// NewRegistry creates a registry from rules, copying them.
func NewRegistry(rules []ExtensionRule) *Registry {
	r := &Registry{rules: make([]ExtensionRule, 0, len(rules))}
	for _, rule := range rules {
		r.rules = append(r.rules, rule.Clone())
	}
	return r
}

// DefaultRegistry returns a registry over DefaultRules.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultRules())
}

// Lookup returns the first rule whose extensions suffix-match filePath.
//
// Description:
//
//	Matching is a plain, case-sensitive suffix test, so "app.d.ts" matches
//	".ts" and "App.TS" matches nothing.
//
// Inputs:
//
//	filePath - Absolute or relative path to the file
//
// Outputs:
//
//	ExtensionRule - A copy of the matching rule
//	bool - False when no rule matches
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Lookup(filePath string) (ExtensionRule, bool) {
	if r == nil {
		return ExtensionRule{}, false
	}
	for _, rule := range r.rules {
		if rule.Matches(filePath) {
			return rule.Clone(), true
		}
	}
	return ExtensionRule{}, false
}

// Rules returns copies of all rules in priority order.
func (r *Registry) Rules() []ExtensionRule {
	if r == nil {
		return nil
	}
	out := make([]ExtensionRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Clone())
	}
	return out
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Validate checks the registry for ambiguous or malformed rules.
//
// Description:
//
//	A file whose suffix matches two rules silently runs only the first, so
//	overlap is treated as a configuration error. Also rejects empty
//	commands, empty labels and duplicate labels within one category.
//	All problems are joined into one error.
//
// Outputs:
//
//	error - Nil when the registry is well formed
//
// Errors:
//
//	ErrOverlappingExtensions - An extension appears in more than one rule
//	ErrDuplicateLabel - Two linters (or two formatters) of a rule share a label
//	ErrInvalidInput - A rule or tool is missing required fields
func (r *Registry) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil registry", ErrInvalidInput)
	}

	var errs []error
	owner := make(map[string]string)

	for i, rule := range r.rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
		}
		if len(rule.Extensions) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s has no extensions", ErrInvalidInput, name))
		}
		for _, ext := range rule.Extensions {
			if ext == "" {
				errs = append(errs, fmt.Errorf("%w: %s has an empty extension", ErrInvalidInput, name))
				continue
			}
			if prev, ok := owner[ext]; ok {
				errs = append(errs, fmt.Errorf("%w: %q in %s and %s", ErrOverlappingExtensions, ext, prev, name))
				continue
			}
			owner[ext] = name
		}
		errs = append(errs, validateTools(name, "linters", rule.Linters)...)
		errs = append(errs, validateTools(name, "formatters", rule.Formatters)...)
	}

	return errors.Join(errs...)
}

func validateTools(rule, category string, tools []ToolSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		if t.Executable() == "" {
			errs = append(errs, fmt.Errorf("%w: %s %s[%d] has no command", ErrInvalidInput, rule, category, i))
		}
		if t.Label == "" {
			errs = append(errs, fmt.Errorf("%w: %s %s[%d] has no label", ErrInvalidInput, rule, category, i))
			continue
		}
		if seen[t.Label] {
			errs = append(errs, fmt.Errorf("%w: %q in %s %s", ErrDuplicateLabel, t.Label, rule, category))
		}
		seen[t.Label] = true
	}
	return errs
}
