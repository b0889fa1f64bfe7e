// Package components provides reusable TUI widgets for the voxdeck client.
package components

import (
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Stat is one labelled figure in a stat card row.
type Stat struct {
	Label string
	Value string
	Note  string
}

// LayoutRow distributes totalWidth into n widths that sum to exactly totalWidth.
// First items absorb the remainder from integer division.
func LayoutRow(totalWidth, n int) []int {
	if n <= 0 {
		return nil
	}
	base := totalWidth / n
	remainder := totalWidth % n
	widths := make([]int, n)
	for i := range widths {
		widths[i] = base
		if i < remainder {
			widths[i]++
		}
	}
	return widths
}

// StatCard renders a bordered card with a muted label over a bold value.
// outerWidth is the total rendered width including border.
func StatCard(s Stat, outerWidth int) string {
	t := theme.Active

	inner := outerWidth - 2
	if inner < 8 {
		inner = 8
	}

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		BorderBackground(t.Surface).
		Background(t.Surface).
		Width(inner).
		Padding(0, 1)

	label := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface).Bold(true)
	note := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	content := label.Render(s.Label) + "\n" + value.Render(s.Value)
	if s.Note != "" {
		content += "\n" + note.Render(s.Note)
	}
	return card.Render(content)
}

// StatRow renders stat cards side by side, summing to totalWidth.
func StatRow(stats []Stat, totalWidth int) string {
	if len(stats) == 0 {
		return ""
	}
	widths := LayoutRow(totalWidth, len(stats))
	cards := make([]string, len(stats))
	for i, s := range stats {
		cards[i] = StatCard(s, widths[i])
	}
	return CardRow(cards)
}

// Panel renders a bordered drawer section with an optional title.
// outerWidth controls the total rendered width including border.
func Panel(title, body string, outerWidth int) string {
	t := theme.Active

	inner := outerWidth - 2
	if inner < 10 {
		inner = 10
	}

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		BorderBackground(t.Surface).
		Background(t.Surface).
		Width(inner).
		Padding(0, 1)

	heading := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).Bold(true)

	content := body
	if title != "" {
		content = heading.Render(title) + "\n" + body
	}
	return card.Render(content)
}

// CardRow joins pre-rendered cards horizontally. Shorter cards are padded
// with the surface color so the row has no unstyled gaps.
func CardRow(cards []string) string {
	if len(cards) == 0 {
		return ""
	}
	tallest := 0
	for _, c := range cards {
		if h := lipgloss.Height(c); h > tallest {
			tallest = h
		}
	}
	fill := lipgloss.NewStyle().Background(theme.Active.Surface)
	padded := make([]string, len(cards))
	for i, c := range cards {
		padded[i] = fill.Width(lipgloss.Width(c)).Height(tallest).Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, padded...)
}

// PanelInnerWidth returns the usable text width inside a Panel given its
// outer width (subtracts border and padding).
func PanelInnerWidth(outerWidth int) int {
	w := outerWidth - 4
	if w < 10 {
		w = 10
	}
	return w
}
