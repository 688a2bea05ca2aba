// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders verdicts and tool listings for people at a terminal.
//
// Hook commands never use this package; their stdout is machine JSON.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

// Aleutian palette.
var (
	ColorTealBright = lipgloss.Color("#2CD7C7")
	ColorTealDeep   = lipgloss.Color("#16858E")
	ColorSlate      = lipgloss.Color("#2C4A54")
	ColorWarning    = lipgloss.Color("#F4D03F")
	ColorError      = lipgloss.Color("#E74C3C")
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

// Mode selects how output is decorated.
type Mode int

const (
	// ModeStyled uses colors and icons.
	ModeStyled Mode = iota

	// ModePlain writes undecorated text suitable for pipes and logs.
	ModePlain
)

// DetectMode returns ModeStyled when w is a terminal and NO_COLOR is unset.
func DetectMode(w io.Writer) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	f, ok := w.(*os.File)
	if !ok {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeStyled
	}
	return ModePlain
}

// Printer writes styled output to one writer.
//
// Thread Safety: Not safe for concurrent use; watch mode prints from one
// goroutine.
type Printer struct {
	w    io.Writer
	mode Mode

	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

// NewPrinter creates a Printer. Styles are bound to w's color profile.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		mode:    mode,
		title:   r.NewStyle().Bold(true).Foreground(ColorTealBright),
		muted:   r.NewStyle().Foreground(ColorSlate),
		success: r.NewStyle().Foreground(ColorTealBright),
		warning: r.NewStyle().Foreground(ColorWarning),
		failure: r.NewStyle().Foreground(ColorError),
	}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

func (p *Printer) icon(i Icon) string {
	if p.mode == ModePlain {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return p.success.Render(string(i))
	case IconWarning:
		return p.warning.Render(string(i))
	case IconError:
		return p.failure.Render(string(i))
	case IconPending:
		return p.muted.Render(string(i))
	default:
		return string(i)
	}
}

// Verdict prints one evaluated file.
//
// Plain mode writes Verdict.Message unchanged so scripts can match on it.
// Styled mode adds a status icon, rule summary and colored bullets.
func (p *Printer) Verdict(v diagnose.Verdict) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.w, v.Message())
		return
	}

	icon := IconSuccess
	switch {
	case len(v.Diagnostics) > 0:
		icon = IconError
	case v.Inconclusive || !v.Checked():
		icon = IconWarning
	}

	summary := fmt.Sprintf("%d run, %d skipped", v.ToolsRun, v.ToolsSkipped)
	if v.Rule != "" {
		summary = v.Rule + ", " + summary
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.icon(icon), p.title.Render(v.File), p.muted.Render("("+summary+")"))

	switch {
	case len(v.Diagnostics) > 0:
		for _, d := range v.Shown() {
			fmt.Fprintf(p.w, "  %s %s %s\n", p.icon(IconBullet), p.failure.Render(d.Tool+":"), d.Text)
		}
		if v.TruncatedCount > 0 {
			fmt.Fprintf(p.w, "  %s\n", p.muted.Render(fmt.Sprintf("...and %d more", v.TruncatedCount)))
		}
	case v.Checked():
		fmt.Fprintf(p.w, "  %s\n", p.success.Render(fmt.Sprintf("All %d linting checks passed", v.ToolsRun)))
	default:
		fmt.Fprintf(p.w, "  %s\n", p.warning.Render(v.NoCheckMessage()))
	}
	if v.Inconclusive {
		fmt.Fprintf(p.w, "  %s\n", p.warning.Render("inconclusive: deadline exceeded before all checks finished"))
	}
}

// ToolStatus is one row of the tools listing.
type ToolStatus struct {
	Label     string
	Command   []string
	Available bool
	Path      string
}

// RuleStatus groups tool rows under a rule.
type RuleStatus struct {
	Name       string
	Extensions []string
	Tools      []ToolStatus
}

// Tools prints the registry with per-tool availability.
func (p *Printer) Tools(rules []RuleStatus) {
	for i, rule := range rules {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		header := fmt.Sprintf("%s [%s]", rule.Name, strings.Join(rule.Extensions, " "))
		if p.mode == ModePlain {
			fmt.Fprintln(p.w, header)
		} else {
			fmt.Fprintln(p.w, p.title.Render(header))
		}
		for _, t := range rule.Tools {
			icon := IconPending
			where := "not installed"
			if t.Available {
				icon = IconSuccess
				where = t.Path
			}
			cmd := strings.Join(t.Command, " ")
			if p.mode == ModePlain {
				fmt.Fprintf(p.w, "  %s\t%s\t%s\t%s\n", icon, t.Label, cmd, where)
				continue
			}
			fmt.Fprintf(p.w, "  %s %s %s %s\n", p.icon(icon), t.Label, p.muted.Render(cmd), p.muted.Render("("+where+")"))
		}
	}
}

// Summary prints watch-mode totals.
func (p *Printer) Summary(passed, failed, unchecked int) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "SUMMARY: passed=%d failed=%d unchecked=%d\n", passed, failed, unchecked)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s\n",
		p.success.Render(fmt.Sprint(passed)), p.muted.Render("passed"),
		p.failure.Render(fmt.Sprint(failed)), p.muted.Render("failed"),
		p.warning.Render(fmt.Sprint(unchecked)), p.muted.Render("unchecked"),
	)
}
