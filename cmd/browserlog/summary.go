package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/collector"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

// renderSummary describes an extraction for stderr.
func renderSummary(res *extract.Result, interrupted bool) string {
	s := res.Stats
	lines := []string{
		titleStyle.Render("browserlog extraction") + " " + dimStyle.Render(res.ID),
		row("target", s.Target),
		row("collected", s.Collected),
		row("suppressed", s.Suppressed),
		row("filtered", s.Filtered),
		row("records", s.Records),
		row("duration", fmt.Sprintf("%dms", s.DurationMs)),
	}
	if s.Dropped > 0 {
		lines = append(lines, row("dropped", warningStyle.Render(fmt.Sprint(s.Dropped))))
	}
	if s.Reconnects > 0 {
		lines = append(lines, row("reconnects", s.Reconnects))
	}
	if s.StoppedEarly {
		lines = append(lines, warningStyle.Render("connection lost; records are partial"))
	}
	if interrupted {
		lines = append(lines, warningStyle.Render("interrupted; records are partial"))
	}
	if s.FilterError != "" {
		lines = append(lines, errorStyle.Render("filter expression rejected: "+s.FilterError))
	}
	return "\n" + boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// renderProgress is the single progress line shown while collecting.
func renderProgress(p collector.Progress) string {
	return dimStyle.Render(fmt.Sprintf("collecting: %d buffered, %d suppressed, %s left",
		p.Buffered, p.Suppressed, p.Remaining.Round(100*time.Millisecond)))
}

// renderClassification describes one classified message.
func renderClassification(msg string, c classify.Classification, known bool) string {
	if !known {
		return dimStyle.Render("unclassified") + "  " + msg
	}
	sev := warningStyle
	if c.Severity == classify.SeverityError {
		sev = errorStyle
	}
	noise := ""
	if classify.ShouldSuppress(c) {
		noise = dimStyle.Render(" (suppressed during collection)")
	}
	return sev.Render(c.Code) + noise + "\n  " + c.Recommendation
}
