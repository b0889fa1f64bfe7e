package components

import (
	"fmt"

	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ColorForLevel maps a 0..1 audio level onto the theme's wave gradient.
func ColorForLevel(level float64) lipgloss.Color {
	w := theme.Active.Wave
	switch {
	case level >= 0.75:
		return w[2]
	case level >= 0.35:
		return w[1]
	default:
		return w[0]
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LevelMeter renders a labelled horizontal audio level bar.
func LevelMeter(label string, level float64, labelW, barWidth int) string {
	t := theme.Active
	level = clamp01(level)

	bar := progress.New(
		progress.WithSolidFill(string(ColorForLevel(level))),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	pctStyle := lipgloss.NewStyle().Foreground(ColorForLevel(level)).Bold(true)

	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, label)) + " " +
		bar.ViewAs(level) + " " +
		pctStyle.Render(fmt.Sprintf("%3.0f%%", level*100))
}

// ShareBar renders the prompt share of a prompt/completion token split.
// A zero total renders an empty bar.
func ShareBar(prompt, completion int64, width int) string {
	t := theme.Active

	total := prompt + completion
	pct := 0.0
	if total > 0 {
		pct = float64(prompt) / float64(total)
	}

	bar := progress.New(
		progress.WithSolidFill(string(t.Blue)),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.Green)
	if total == 0 {
		bar.EmptyColor = string(t.TextDim)
	}
	return bar.ViewAs(pct)
}
