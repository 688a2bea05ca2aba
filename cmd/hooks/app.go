// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianHooks/pkg/logging"
	"github.com/AleutianAI/AleutianHooks/pkg/telemetry"
	"github.com/AleutianAI/AleutianHooks/services/hooks/cache"
	"github.com/AleutianAI/AleutianHooks/services/hooks/config"
	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
	"github.com/AleutianAI/AleutianHooks/services/hooks/format"
	"github.com/AleutianAI/AleutianHooks/services/hooks/watch"
)

// app holds what one command invocation needs.
type app struct {
	cfg    config.Config
	log    *logging.Logger
	logger *slog.Logger

	// cfgErr is the config load failure, if any. cfg holds defaults then.
	cfgErr error

	// cfgPath is the resolved config file, empty when none could be resolved.
	cfgPath string

	shutdownTelemetry func(context.Context) error
}

// newApp loads configuration, applies flag overrides and starts logging
// and telemetry. It never fails: problems are logged and defaults used.
// Callers that must not run on a bad config check a.cfgErr.
func newApp(ctx context.Context, opts rootOptions, stderr io.Writer) *app {
	a := &app{}

	path := opts.configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	a.cfgPath = path
	a.cfg, a.cfgErr = config.Load(path)

	if opts.logLevel != "" {
		a.cfg.Log.Level = opts.logLevel
	}
	if opts.deadline > 0 {
		a.cfg.Deadline = opts.deadline
	}

	level, err := logging.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	a.log = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.cfg.Log.Dir,
		Service: "hooks",
		JSON:    a.cfg.Log.JSON,
		Stderr:  stderr,
	})
	a.logger = a.log.Slog().With(slog.String("invocation_id", uuid.NewString()))

	if a.cfgErr != nil {
		a.logger.Warn("config load failed, using defaults",
			slog.String("path", path),
			slog.String("error", a.cfgErr.Error()))
	}
	if err != nil {
		a.logger.Warn("invalid log level, using info", slog.String("level", a.cfg.Log.Level))
	}

	shutdown, err := telemetry.Init(ctx, a.cfg.OTelConfig(version))
	if err != nil {
		a.logger.Warn("telemetry disabled", slog.String("error", err.Error()))
		shutdown = func(context.Context) error { return nil }
	}
	a.shutdownTelemetry = shutdown
	return a
}

// Close flushes telemetry and closes the log file.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.shutdownTelemetry(ctx), a.log.Close())
}

// engine builds the diagnose Engine. A registry error falls back to the
// default registry, which Load already guarantees for a failed load.
func (a *app) engine(opts ...diagnose.EngineOption) *diagnose.Engine {
	reg, err := a.cfg.Registry()
	if err != nil {
		a.logger.Warn("invalid rules, using defaults", slog.String("error", err.Error()))
		reg = diagnose.DefaultRegistry()
	}
	all := append(a.cfg.EngineOptions(), diagnose.WithLogger(a.logger))
	return diagnose.NewEngine(reg, append(all, opts...)...)
}

// evaluator returns the engine, wrapped in the verdict cache when it is
// enabled and can be opened. release closes the cache.
func (a *app) evaluator() (eval watch.Evaluator, release func()) {
	engine := a.engine()
	if !a.cfg.Cache.Enabled {
		return engine, func() {}
	}
	store, err := cache.Open(cache.Config{
		Dir:        expandHome(a.cfg.Cache.Dir),
		TTL:        a.cfg.Cache.TTL,
		GCInterval: 10 * time.Minute,
		Logger:     a.logger,
	})
	if err != nil {
		a.logger.Warn("verdict cache unavailable", slog.String("error", err.Error()))
		return engine, func() {}
	}
	return cache.NewCachedEvaluator(engine, store, a.logger), func() { _ = store.Close() }
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// formatter builds the auto-format Formatter.
func (a *app) formatter(opts ...format.Option) *format.Formatter {
	all := []format.Option{
		format.WithTimeout(a.cfg.Format.Timeout),
		format.WithLogger(a.logger),
	}
	return format.New(a.cfg.FormatTable(), append(all, opts...)...)
}

// withDeadline applies the configured outer deadline, if any.
func (a *app) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Deadline > 0 {
		return context.WithTimeout(ctx, a.cfg.Deadline)
	}
	return context.WithCancel(ctx)
}
