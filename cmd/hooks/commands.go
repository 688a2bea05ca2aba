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
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	deadline   time.Duration
	logLevel   string
}

var (
	rootOpts rootOptions

	rootCmd = &cobra.Command{
		Use:           "aleutian-hooks",
		Short:         "Lint and format files edited by an AI coding agent",
		Long:          `Runs the installed linters for each edited file and reports what they found, either as a hook answering on stdout or interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	lintCmd = &cobra.Command{
		Use:   "lint",
		Short: "Hook: read a tool event on stdin and report lint results",
		Long:  `Reads the agent's PostToolUse event from stdin, lints the written file and answers {"action":"allow"} with a message. Always exits 0.`,
		Args:  cobra.NoArgs,
		RunE:  runLintCommand,
	}

	formatCmd = &cobra.Command{
		Use:   "format",
		Short: "Hook: read a tool event on stdin and auto-format the file",
		Args:  cobra.NoArgs,
		RunE:  runFormatCommand,
	}

	checkCmd = &cobra.Command{
		Use:   "check [file...]",
		Short: "Lint files and print the results",
		Long:  `Evaluates each file against the configured rules. Exits 1 when any file has diagnostics.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheckCommand,
	}
	checkJSON bool

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List configured rules and which tools are installed",
		Args:  cobra.NoArgs,
		RunE:  runToolsCommand,
	}

	watchCmd = &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-lint files as they change under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatchCommand,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the hooks configuration",
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	configInitForce bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "aleutian-hooks "+version)
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootOpts.configPath, "config", "", "Config file (default $ALEUTIAN_HOOKS_CONFIG or ~/.aleutian/hooks.yaml)")
	flags.DurationVar(&rootOpts.deadline, "deadline", 0, "Overall deadline per file evaluation, 0 uses the config value")
	flags.StringVar(&rootOpts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(formatCmd)

	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Emit verdicts as JSON")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(versionCmd)
}
