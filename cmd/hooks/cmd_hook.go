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
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHooks/services/hooks/event"
)

func runLintCommand(cmd *cobra.Command, args []string) error {
	a := newApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
	defer a.Close()
	return lintHook(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runFormatCommand(cmd *cobra.Command, args []string) error {
	a := newApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
	defer a.Close()
	return formatHook(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
}

// lintHook answers one lint hook event. Every path writes an allow
// response; only a failed write is returned.
func lintHook(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	ev, err := event.Decode(in)
	if err != nil {
		a.logger.Warn("hook event rejected", slog.String("error", err.Error()))
		return event.Write(out, event.SystemError(event.PrefixLintError, err))
	}

	path, ok := ev.Target()
	if !ok {
		a.logger.Debug("event has no file target", slog.String("tool", ev.Tool))
		return event.Write(out, event.Allow(""))
	}

	ctx, cancel := a.withDeadline(ctx)
	defer cancel()

	v := a.engine().Evaluate(ctx, path)
	return event.Write(out, event.LintResponse(v))
}

// formatHook answers one auto-format hook event.
func formatHook(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	ev, err := event.Decode(in)
	if err != nil {
		a.logger.Warn("hook event rejected", slog.String("error", err.Error()))
		return event.Write(out, event.SystemError(event.PrefixFormatError, err))
	}

	path, ok := ev.Target()
	if !ok {
		return event.Write(out, event.Allow(""))
	}

	ctx, cancel := a.withDeadline(ctx)
	defer cancel()

	result := a.formatter().Format(ctx, path)
	return event.Write(out, event.FormatResponse(result))
}
