package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/agentpack/internal/build"
)

var (
	statusStyleBuilt     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	statusStyleUnchanged = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	statusStyleWarned    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	statusStyleFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	headerStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	detailStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

func statusStyle(s build.Status) lipgloss.Style {
	switch s {
	case build.StatusBuilt:
		return statusStyleBuilt
	case build.StatusWarned:
		return statusStyleWarned
	case build.StatusFailed, build.StatusSkipped:
		return statusStyleFailed
	}
	return statusStyleUnchanged
}

// RenderReport formats a build report as an aligned table followed by the
// details of every warned or failed target.
func RenderReport(r *build.Report) string {
	if r == nil || len(r.Results) == 0 {
		return detailStyle.Render("nothing to build")
	}
	width := len("TARGET")
	for _, res := range r.Results {
		if n := len(res.Target.String()); n > width {
			width = n
		}
	}
	row := func(target, status, resources, size string) string {
		return fmt.Sprintf("%-*s  %-9s  %9s  %10s", width, target, status, resources, size)
	}

	lines := []string{headerStyle.Render(row("TARGET", "STATUS", "RESOURCES", "SIZE"))}
	var details []string
	for _, res := range r.Results {
		resources, size := "-", "-"
		if res.Stats.Size > 0 {
			resources = fmt.Sprint(res.Stats.Resources)
			size = fmt.Sprint(res.Stats.Size)
		}
		// Pad before styling so escape codes do not skew the columns.
		status := statusStyle(res.Status).Render(fmt.Sprintf("%-9s", res.Status))
		line := fmt.Sprintf("%-*s  %s  %9s  %10s", width, res.Target.String(), status, resources, size)
		lines = append(lines, line)

		if res.Err != nil && res.Status != build.StatusSkipped {
			details = append(details, fmt.Sprintf("%s: %v", res.Target, res.Err))
		}
		for _, issue := range res.Issues {
			details = append(details, fmt.Sprintf("%s: %s (%s)", res.Target, issue.Message, issue.Severity))
		}
		if len(res.Skipped) > 0 {
			details = append(details, fmt.Sprintf("%s: skipped %s", res.Target, strings.Join(res.Skipped, ", ")))
		}
	}
	footer := fmt.Sprintf("%d built, %d unchanged, %d warned, %d failed",
		r.Count(build.StatusBuilt),
		r.Count(build.StatusUnchanged),
		r.Count(build.StatusWarned),
		r.Count(build.StatusFailed),
	)
	if n := r.Count(build.StatusSkipped); n > 0 {
		footer += fmt.Sprintf(", %d skipped", n)
	}
	lines = append(lines, "", footer)
	for _, d := range details {
		lines = append(lines, detailStyle.Render("  "+d))
	}
	return strings.Join(lines, "\n")
}
