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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHooks/pkg/telemetry"
	"github.com/AleutianAI/AleutianHooks/pkg/ux"
	"github.com/AleutianAI/AleutianHooks/services/hooks/watch"
)

func runWatchCommand(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	a := newApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
	defer a.Close()
	if a.cfgErr != nil {
		return a.cfgErr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchDir(ctx, a, root, cmd.OutOrStdout())
}

// watchDir watches root until ctx is done, printing each verdict and a
// summary on exit.
func watchDir(ctx context.Context, a *app, root string, out io.Writer) error {
	printer := ux.NewPrinter(out, ux.DetectMode(out))
	eval, release := a.evaluator()
	defer release()
	session := watch.NewSession(eval, printer.Verdict, watch.SessionOptions{
		Rate:     a.cfg.Watch.Rate,
		Burst:    a.cfg.Watch.Burst,
		Deadline: a.cfg.Deadline,
		Logger:   a.logger,
	})

	w, err := watch.NewWatcher(root, session.HandleBatch, watch.Options{
		Debounce: a.cfg.Watch.Debounce,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	if a.cfg.Watch.StatusAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.Watch.StatusAddr,
			Handler:           watch.NewStatusRouter(root, session, telemetry.MetricsHandler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go serveStatus(srv, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	} else if a.cfg.Telemetry.Metrics == telemetry.ExporterPrometheus {
		a.logger.Warn("prometheus metrics selected but watch.status_addr is empty, nothing will serve them")
	}

	err = w.Run(ctx)
	st := session.Stats()
	printer.Summary(st.Passed, st.Failed, st.Unchecked)
	return err
}

func serveStatus(srv *http.Server, logger *slog.Logger) {
	logger.Info("status API listening", slog.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("status API failed", slog.String("error", err.Error()))
	}
}
