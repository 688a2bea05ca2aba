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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Validates(t *testing.T) {
	reg := DefaultRegistry()
	require.NoError(t, reg.Validate())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		path     string
		wantRule string
		wantOK   bool
	}{
		{"src/app.ts", "typescript", true},
		{"src/App.tsx", "typescript", true},
		{"types/app.d.ts", "typescript", true},
		{"index.js", "javascript", true},
		{"Button.jsx", "javascript", true},
		{"/abs/path/main.py", "python", true},
		{"script.sh", "", false},
		{"App.TS", "", false},
		{"Makefile", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rule, ok := reg.Lookup(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRule, rule.Name)
		})
	}
}

func TestRegistry_Lookup_ToolOrder(t *testing.T) {
	rule, ok := DefaultRegistry().Lookup("main.py")
	require.True(t, ok)

	var labels []string
	for _, tool := range rule.Tools() {
		labels = append(labels, tool.Label)
	}
	assert.Equal(t, []string{
		"Flake8 style check",
		"MyPy type check",
		"Pylint analysis",
		"Black format check",
	}, labels)
}

func TestRegistry_Lookup_FirstMatchWins(t *testing.T) {
	reg := NewRegistry([]ExtensionRule{
		{Name: "first", Extensions: []string{".ts"}},
		{Name: "second", Extensions: []string{".ts"}},
	})

	rule, ok := reg.Lookup("a.ts")
	require.True(t, ok)
	assert.Equal(t, "first", rule.Name)
}

func TestRegistry_Lookup_NilRegistry(t *testing.T) {
	var reg *Registry
	_, ok := reg.Lookup("a.ts")
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
	assert.Nil(t, reg.Rules())
}

func TestRegistry_IsolatedFromCallerMutation(t *testing.T) {
	rules := []ExtensionRule{{
		Name:       "go",
		Extensions: []string{".go"},
		Linters:    []ToolSpec{{Command: []string{"go", "vet"}, Label: "go vet"}},
	}}
	reg := NewRegistry(rules)

	rules[0].Extensions[0] = ".rs"
	rules[0].Linters[0].Command[0] = "cargo"

	rule, ok := reg.Lookup("main.go")
	require.True(t, ok)
	assert.Equal(t, "go", rule.Linters[0].Command[0])

	// Lookup results are copies too.
	rule.Linters[0].Label = "changed"
	again, _ := reg.Lookup("main.go")
	assert.Equal(t, "go vet", again.Linters[0].Label)
}

func TestRegistry_Validate_Overlap(t *testing.T) {
	reg := NewRegistry([]ExtensionRule{
		{Name: "typescript", Extensions: []string{".ts"}, Linters: []ToolSpec{tscCheck}},
		{Name: "deno", Extensions: []string{".js", ".ts"}, Linters: []ToolSpec{eslintAnalysis}},
	})

	err := reg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlappingExtensions))
	assert.Contains(t, err.Error(), ".ts")
	assert.Contains(t, err.Error(), "typescript")
	assert.Contains(t, err.Error(), "deno")
}

func TestRegistry_Validate_DuplicateLabel(t *testing.T) {
	reg := NewRegistry([]ExtensionRule{{
		Name:       "python",
		Extensions: []string{".py"},
		Linters: []ToolSpec{
			{Command: []string{"flake8"}, Label: "Style"},
			{Command: []string{"pycodestyle"}, Label: "Style"},
		},
	}})

	err := reg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestRegistry_Validate_SameLabelAcrossCategories(t *testing.T) {
	reg := NewRegistry([]ExtensionRule{{
		Name:       "python",
		Extensions: []string{".py"},
		Linters:    []ToolSpec{{Command: []string{"ruff", "check"}, Label: "Ruff"}},
		Formatters: []ToolSpec{{Command: []string{"ruff", "format", "--check"}, Label: "Ruff"}},
	}})

	assert.NoError(t, reg.Validate())
}

func TestRegistry_Validate_Malformed(t *testing.T) {
	reg := NewRegistry([]ExtensionRule{
		{Name: "empty-ext", Extensions: nil, Linters: []ToolSpec{tscCheck}},
		{Name: "bad-tool", Extensions: []string{".rb"}, Linters: []ToolSpec{{Label: "nothing"}}},
		{Name: "no-label", Extensions: []string{".rs"}, Linters: []ToolSpec{{Command: []string{"clippy"}}}},
	})

	err := reg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "empty-ext")
	assert.Contains(t, err.Error(), "bad-tool")
	assert.Contains(t, err.Error(), "no-label")
}

func TestParseOutputShape(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputShape
		wantErr bool
	}{
		{"", ShapeFreeText, false},
		{"text", ShapeFreeText, false},
		{"findings", ShapeStructuredFindings, false},
		{"structured_findings", ShapeStructuredFindings, false},
		{"opaque", ShapeOpaqueStructured, false},
		{"xml", ShapeFreeText, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputShape(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolSpec_Argv(t *testing.T) {
	argv := eslintAnalysis.Argv("src/app.ts")
	assert.Equal(t, []string{"npx", "eslint", "--format", "json", "src/app.ts"}, argv)

	// The package-level spec must not grow.
	assert.Len(t, eslintAnalysis.Command, 4)

	argv = blackCheck.Argv("-weird.py")
	last := argv[len(argv)-1]
	assert.NotEqual(t, "-weird.py", last)
	assert.True(t, strings.HasSuffix(last, "-weird.py"), last)
}

func TestNoCheckReason_Text(t *testing.T) {
	for _, r := range []NoCheckReason{ReasonNone, ReasonUnrecognized, ReasonUnavailable, ReasonFileMissing} {
		text, err := r.MarshalText()
		require.NoError(t, err)
		var back NoCheckReason
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, r, back)
	}

	var bad NoCheckReason
	assert.ErrorIs(t, bad.UnmarshalText([]byte("sideways")), ErrInvalidInput)
}
