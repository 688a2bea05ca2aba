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
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHooks/pkg/ux"
	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

func runToolsCommand(cmd *cobra.Command, args []string) error {
	a := newApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
	defer a.Close()
	if a.cfgErr != nil {
		return a.cfgErr
	}
	listTools(a.engine().Registry(), diagnose.NewPathProber(), cmd.OutOrStdout())
	return nil
}

// listTools prints every rule with the availability of its tools.
func listTools(reg *diagnose.Registry, prober diagnose.Prober, out io.Writer) {
	rules := reg.Rules()
	statuses := make([]ux.RuleStatus, 0, len(rules))
	for _, rule := range rules {
		rs := ux.RuleStatus{Name: rule.Name, Extensions: rule.Extensions}
		for _, tool := range rule.Tools() {
			avail := prober.Probe(tool.Executable())
			rs.Tools = append(rs.Tools, ux.ToolStatus{
				Label:     tool.Label,
				Command:   tool.Command,
				Available: avail.Available,
				Path:      avail.Path,
			})
		}
		statuses = append(statuses, rs)
	}
	ux.NewPrinter(out, ux.DetectMode(out)).Tools(statuses)
}
