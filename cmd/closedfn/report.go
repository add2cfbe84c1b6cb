package main

import (
	"fmt"
	"strings"

	"closedfn/internal/config"
	"closedfn/internal/host"
	"closedfn/internal/plugin"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
)

var (
	successColor = lipgloss.Color("#8BC34A")
	errorColor   = lipgloss.Color("#e53935")
	mutedColor   = lipgloss.Color("#6b7280")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

func renderReport(c *config.Config, res *host.Result, stats plugin.Stats) string {
	var b strings.Builder
	if len(res.Errors) == 0 {
		b.WriteString(successStyle.Render("✓ build succeeded"))
	} else {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ build failed (%d errors)", len(res.Errors))))
	}
	b.WriteString("\n")

	rows := [][2]string{
		{"entry", c.Build.Entry},
		{"mode", string(c.Build.Mode)},
		{"modules", fmt.Sprintf("%d", len(res.Modules))},
		{"closed functions", fmt.Sprintf("%d mounted of %d", stats.Mounted, stats.Satellites)},
		{"pruned edges", fmt.Sprintf("%d", stats.Pruned)},
	}
	if res.Outfile != "" {
		rows = append(rows, [2]string{"output", fmt.Sprintf("%s (%d bytes)", res.Outfile, len(res.Output))})
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", mutedStyle.Render(fmt.Sprintf("%-17s", r[0])), r[1]))
	}
	for _, err := range res.Errors {
		b.WriteString(errorStyle.Render("error: "))
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	for _, w := range res.Warnings {
		b.WriteString(mutedStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderFailure(err error) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("✗ build aborted"))
	for _, e := range multierr.Errors(err) {
		b.WriteString("\n")
		b.WriteString(e.Error())
	}
	return boxStyle.Render(b.String())
}

func renderCheck(files, closed int, errs []error) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d files, %d closed functions", files, closed)))
	b.WriteString("\n")
	if len(errs) == 0 {
		b.WriteString(successStyle.Render("✓ no problems found"))
	}
	for _, err := range errs {
		b.WriteString(errorStyle.Render("✗ "))
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
