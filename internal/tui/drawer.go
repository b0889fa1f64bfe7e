package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/telemetry"
	"github.com/theirongolddev/voxdeck/internal/tui/components"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

const (
	stageChartHeight = 5
	// Below this inner width the token stats render as rows, not cards.
	statCardMinWidth = 45
)

// stageSeries extracts one stage's values from the TTFB history.
func stageSeries(history []model.TTFBPoint, stage model.Stage) []float64 {
	if len(history) == 0 {
		return nil
	}
	out := make([]float64, len(history))
	for i, p := range history {
		out[i] = p.Snapshot().Get(stage)
	}
	return out
}

// renderDrawer renders the metrics drawer at its current width. The left
// border column is the drag handle.
func (a App) renderDrawer(h int) string {
	t := theme.Active
	snap := a.hub.Session().Snapshot()

	outer := a.drawerWidth - 1
	body := drawerBody(snap, outer)

	body = padHeight(truncateHeight(body, h), h)
	body = fillLinesWithBackground(body, outer, t.Surface)

	edge := t.Border
	if a.dragging {
		edge = t.BorderAccent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(edge).
		BorderBackground(t.Surface).
		Render(body)
}

// drawerBody lays out the drawer sections for an outer width.
func drawerBody(snap telemetry.Snapshot, outer int) string {
	t := theme.Active
	inner := components.PanelInnerWidth(outer)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface).Bold(true)

	var sections []string

	usage := snap.Usage
	stats := []components.Stat{
		{Label: "Prompt", Value: cli.FormatTokens(usage.Prompt)},
		{Label: "Completion", Value: cli.FormatTokens(usage.Completion)},
		{Label: "Total", Value: cli.FormatTokens(usage.Total)},
	}
	var tokens string
	if inner >= statCardMinWidth {
		tokens = components.StatRow(stats, inner)
	} else {
		rows := make([]string, len(stats))
		for i, st := range stats {
			rows[i] = muted.Render(fmt.Sprintf("%-12s", st.Label)) + value.Render(st.Value)
		}
		tokens = strings.Join(rows, "\n")
	}
	sections = append(sections, components.Panel("Token Usage",
		tokens+"\n"+components.ShareBar(usage.Prompt, usage.Completion, inner), outer))

	cum := snap.Cumulative
	sections = append(sections, components.Panel("Total Conversation Tokens",
		value.Render(cli.FormatNumber(cum.Total))+muted.Render(
			fmt.Sprintf("  %s prompt · %s completion",
				cli.FormatNumber(cum.Prompt), cli.FormatNumber(cum.Completion))),
		outer))

	for i, stage := range model.Stages {
		name := strings.ToUpper(string(stage))
		series := stageSeries(snap.History, stage)
		title := name + " TTFB"
		if len(series) > 0 {
			title += "  " + cli.FormatMs(snap.TTFB.Get(stage))
		}
		chart := components.LatencyChart(name, series, t.Stage(i), inner, stageChartHeight)
		sections = append(sections, components.Panel(title, chart, outer))
	}

	var perf strings.Builder
	perf.WriteString(muted.Render("Average TTFB  "))
	if snap.TTFBBatches == 0 {
		perf.WriteString(muted.Render("--"))
	} else {
		perf.WriteString(value.Render(cli.FormatMs(snap.TTFB.Average())))
		perf.WriteString("\n")
		perf.WriteString(muted.Render(fmt.Sprintf("%d batches", snap.TTFBBatches)))
	}
	sections = append(sections, components.Panel("Performance Summary", perf.String(), outer))

	return strings.Join(sections, "\n")
}
