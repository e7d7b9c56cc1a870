package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"realtor_scraper/models"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#22C55E")
	warningColor = lipgloss.Color("#EAB308")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	title = lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor)

	tableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	muted         = lipgloss.NewStyle().Foreground(mutedColor)
	statusSuccess = lipgloss.NewStyle().Foreground(successColor)
	statusError   = lipgloss.NewStyle().Foreground(errorColor)
	statusPending = lipgloss.NewStyle().Foreground(warningColor)
)

// Runs renders the run ledger, newest first as returned by the store.
func Runs(runs []models.ScrapeRun, now time.Time) string {
	var b strings.Builder
	b.WriteString(title.Render("Recent Runs") + "\n")
	if len(runs) == 0 {
		b.WriteString(muted.Render("No runs yet") + "\n")
		return b.String()
	}

	header := fmt.Sprintf("%-36s %-9s %-14s %-10s %-9s %6s %7s %6s  %s",
		"Run", "Kind", "City", "Status", "Started", "Links", "Records", "Errors", "Output")
	b.WriteString(tableHeader.Render(header) + "\n")

	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%-36s %-9s %-14s %s %-9s %6d %7d %6d  %s\n",
			r.ID.String(),
			r.Kind,
			truncate(r.City, 14),
			statusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			relativeTime(r.StartedAt, now),
			r.LinksFound,
			r.RecordsExtracted,
			r.ErrorsCount,
			r.OutputPath,
		))
	}
	return b.String()
}

// RunDetail renders the log lines and extraction failures of one run.
func RunDetail(logs []models.ScrapeLog, failures []models.ExtractionFailure) string {
	var b strings.Builder

	b.WriteString(title.Render("Log") + "\n")
	if len(logs) == 0 {
		b.WriteString(muted.Render("No log lines") + "\n")
	}
	for _, l := range logs {
		level := fmt.Sprintf("%-5s", l.Level)
		switch l.Level {
		case models.LogLevelError:
			level = statusError.Render(level)
		case models.LogLevelWarn:
			level = statusPending.Render(level)
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", l.Timestamp.Format("15:04:05"), level, l.Message))
	}

	b.WriteString("\n" + title.Render(fmt.Sprintf("Failures (%d)", len(failures))) + "\n")
	if len(failures) == 0 {
		b.WriteString(muted.Render("None") + "\n")
		return b.String()
	}
	header := fmt.Sprintf("%-16s %-28s %s", "Kind", "Stage", "Link")
	b.WriteString(tableHeader.Render(header) + "\n")
	for _, f := range failures {
		b.WriteString(fmt.Sprintf("%-16s %-28s %s\n", f.Kind, f.Stage, f.Link))
		b.WriteString(muted.Render("  "+f.Message) + "\n")
	}
	return b.String()
}

func statusStyle(status models.RunStatus) lipgloss.Style {
	switch status {
	case models.RunStatusCompleted:
		return statusSuccess
	case models.RunStatusFailed:
		return statusError
	default:
		return statusPending
	}
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
