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
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHooks/pkg/ux"
	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

func runCheckCommand(cmd *cobra.Command, args []string) error {
	a := newApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
	defer a.Close()
	if a.cfgErr != nil {
		return a.cfgErr
	}

	out := cmd.OutOrStdout()
	failed, err := checkFiles(cmd.Context(), a, args, out, checkJSON)
	if err != nil {
		return err
	}
	if failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// checkFiles evaluates each path and prints the verdicts. It returns how
// many verdicts carried diagnostics.
func checkFiles(ctx context.Context, a *app, paths []string, out io.Writer, asJSON bool) (int, error) {
	engine, release := a.evaluator()
	defer release()
	verdicts := make([]diagnose.Verdict, 0, len(paths))
	failed := 0
	for _, path := range paths {
		fileCtx, cancel := a.withDeadline(ctx)
		v := engine.Evaluate(fileCtx, path)
		cancel()
		if len(v.Diagnostics) > 0 {
			failed++
		}
		verdicts = append(verdicts, v)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return failed, enc.Encode(verdicts)
	}

	printer := ux.NewPrinter(out, ux.DetectMode(out))
	for _, v := range verdicts {
		printer.Verdict(v)
	}
	return failed, nil
}
