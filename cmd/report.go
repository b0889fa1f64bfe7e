package cmd

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/model"
)

const stageBarWidth = 30

// printSummary prints a finished session: telemetry first, then the
// transcript. texts holds the display text per message, in order.
func printSummary(sum model.SessionSummary, texts []string) {
	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSION  %s", shortID(sum.SessionID))))
	fmt.Println()

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"Source", sum.Source},
			{"Started", sum.StartedAt.Local().Format("Jan 02 15:04:05")},
			{"Duration", cli.FormatDuration(sum.DurationSecs())},
			{"TTFB batches", cli.FormatNumber(int64(sum.TTFBBatches))},
			{"Messages", cli.FormatNumber(int64(len(sum.Messages)))},
			{"Prompt tokens", cli.FormatNumber(sum.Cumulative.Prompt)},
			{"Completion tokens", cli.FormatNumber(sum.Cumulative.Completion)},
			{"Total tokens", cli.FormatNumber(sum.Cumulative.Total)},
		},
	}))
	fmt.Println()

	if sum.TTFBBatches > 0 {
		peak := 0.0
		for _, st := range model.Stages {
			peak = max(peak, sum.MeanTTFB.Get(st))
		}
		fmt.Println("  Mean time to first byte")
		for _, st := range model.Stages {
			label := strings.ToUpper(string(st))
			fmt.Println(cli.RenderStageBar(label, sum.MeanTTFB.Get(st), peak, stageBarWidth))
		}
		fmt.Printf("  %-4s %s\n", "AVG", cli.FormatMs(sum.MeanTTFB.Average()))
		fmt.Println()

		if len(sum.History) > 1 {
			fmt.Println("  History")
			for _, st := range model.Stages {
				series := make([]float64, len(sum.History))
				for i, p := range sum.History {
					series[i] = p.Snapshot().Get(st)
				}
				fmt.Printf("  %-4s %s\n", strings.ToUpper(string(st)), cli.RenderSparkline(series))
			}
			fmt.Println()
		}
	}

	lines := make([]cli.TranscriptLine, 0, len(sum.Messages))
	for i, m := range sum.Messages {
		text := m.Content
		if i < len(texts) {
			text = texts[i]
		}
		lines = append(lines, cli.TranscriptLine{
			Assistant: m.Role == model.RoleAssistant,
			Text:      text,
			At:        m.CreatedAt,
		})
	}
	fmt.Print(cli.RenderTranscript(lines))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
