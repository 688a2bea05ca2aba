// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the hooks YAML configuration.
//
// The file is optional. Every field has a default, and a non-empty rules
// list replaces the built-in registry wholesale. The loaded Config is a
// plain value; nothing here is global.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianHooks/pkg/telemetry"
	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
	"github.com/AleutianAI/AleutianHooks/services/hooks/format"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid hooks config")

// =============================================================================
// Types
// =============================================================================

// Config is the root of hooks.yaml.
type Config struct {
	// Timeout is the per-tool budget.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Deadline bounds a whole evaluation. Zero means none.
	Deadline time.Duration `yaml:"deadline" validate:"gte=0"`

	MaxDiagnostics int `yaml:"max_diagnostics" validate:"gte=1,lte=1000"`
	Concurrency    int `yaml:"concurrency" validate:"gte=1,lte=64"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Rules replaces the default registry when non-empty.
	Rules []RuleConfig `yaml:"rules,omitempty" validate:"dive"`

	Format FormatConfig `yaml:"format"`
	Watch  WatchConfig  `yaml:"watch"`
	Cache  CacheConfig  `yaml:"cache"`
}

// LogConfig controls pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig controls pkg/telemetry.
type TelemetryConfig struct {
	Traces  string `yaml:"traces" validate:"oneof=none stderr file otlp"`
	Metrics string `yaml:"metrics" validate:"oneof=none stderr file prometheus"`

	// File receives stdout-format output for the "file" exporters.
	File string `yaml:"file" validate:"required_if=Traces file,required_if=Metrics file"`

	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// RuleConfig is one extension rule.
type RuleConfig struct {
	Name       string       `yaml:"name" validate:"required"`
	Extensions []string     `yaml:"extensions" validate:"required,min=1,dive,extension"`
	Linters    []ToolConfig `yaml:"linters" validate:"dive"`
	Formatters []ToolConfig `yaml:"formatters" validate:"dive"`
}

// ToolConfig is one diagnostic command.
type ToolConfig struct {
	Command []string `yaml:"command" validate:"required,min=1,dive,required"`
	Label   string   `yaml:"label" validate:"required"`
	Shape   string   `yaml:"shape" validate:"omitempty,oneof=text free_text findings structured_findings opaque opaque_structured"`
}

// FormatConfig controls the auto-format hook.
type FormatConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Formatters replaces the default table when non-empty.
	Formatters []FormatterConfig `yaml:"formatters,omitempty" validate:"dive"`
}

// FormatterConfig is one write-mode formatter.
type FormatterConfig struct {
	Extensions []string `yaml:"extensions" validate:"required,min=1,dive,extension"`
	Command    []string `yaml:"command" validate:"required,min=1,dive,required"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	Rate     float64       `yaml:"rate" validate:"gt=0"`
	Burst    int           `yaml:"burst" validate:"gte=1"`

	// StatusAddr serves the status API, including /metrics when the
	// prometheus reader is selected. Empty disables it.
	StatusAddr string `yaml:"status_addr" validate:"omitempty,hostname_port"`
}

// CacheConfig controls the verdict cache used by check and watch.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir holds the cache database. A leading ~ is expanded.
	Dir string        `yaml:"dir" validate:"required_if=Enabled true"`
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Timeout:        diagnose.DefaultTimeout,
		MaxDiagnostics: diagnose.DefaultMaxDiagnostics,
		Concurrency:    1,
		Log:            LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Traces:       "none",
			Metrics:      "none",
			OTLPEndpoint: "localhost:4317",
			OTLPInsecure: true,
		},
		Format:         FormatConfig{Timeout: diagnose.DefaultTimeout},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
			Rate:     5,
			Burst:    5,
		},
		Cache: CacheConfig{
			Dir: "~/.aleutian/hooks-cache",
			TTL: 24 * time.Hour,
		},
	}
}

// =============================================================================
// Validation
// =============================================================================

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("extension", validateExtension)
}

// validateExtension accepts suffixes such as ".ts" or ".d.ts".
func validateExtension(fl validator.FieldLevel) bool {
	ext := fl.Field().String()
	return len(ext) > 1 && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, `/\ `)
}

// Validate checks field constraints and then the registry built from Rules.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// Builders
// =============================================================================

// Registry builds the diagnose registry.
//
// Outputs:
//
//	*diagnose.Registry - DefaultRegistry when Rules is empty
//	error - ErrInvalidConfig joined with the shape or registry problem
func (c Config) Registry() (*diagnose.Registry, error) {
	if len(c.Rules) == 0 {
		return diagnose.DefaultRegistry(), nil
	}

	rules := make([]diagnose.ExtensionRule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		linters, err := toolSpecs(rc.Linters)
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		formatters, err := toolSpecs(rc.Formatters)
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		rules = append(rules, diagnose.ExtensionRule{
			Name:       rc.Name,
			Extensions: rc.Extensions,
			Linters:    linters,
			Formatters: formatters,
		})
	}

	reg := diagnose.NewRegistry(rules)
	if err := reg.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return reg, nil
}

func toolSpecs(tools []ToolConfig) ([]diagnose.ToolSpec, error) {
	specs := make([]diagnose.ToolSpec, 0, len(tools))
	for _, tc := range tools {
		shape, err := diagnose.ParseOutputShape(tc.Shape)
		if err != nil {
			return nil, err
		}
		specs = append(specs, diagnose.ToolSpec{Command: tc.Command, Label: tc.Label, Shape: shape})
	}
	return specs, nil
}

// FormatTable returns the configured formatter table, or nil for the default.
func (c Config) FormatTable() format.Table {
	if len(c.Format.Formatters) == 0 {
		return nil
	}
	table := make(format.Table, 0, len(c.Format.Formatters))
	for _, fc := range c.Format.Formatters {
		table = append(table, format.Entry{Extensions: fc.Extensions, Command: fc.Command})
	}
	return table
}

// EngineOptions returns the engine settings carried by the config.
func (c Config) EngineOptions() []diagnose.EngineOption {
	return []diagnose.EngineOption{
		diagnose.WithTimeout(c.Timeout),
		diagnose.WithMaxDiagnostics(c.MaxDiagnostics),
		diagnose.WithConcurrency(c.Concurrency),
	}
}

// OTelConfig maps the telemetry section onto pkg/telemetry.
func (c Config) OTelConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Traces = c.Telemetry.Traces
	tc.Metrics = c.Telemetry.Metrics
	tc.File = c.Telemetry.File
	tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	tc.OTLPInsecure = c.Telemetry.OTLPInsecure
	return tc
}
