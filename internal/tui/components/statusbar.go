package components

import (
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// RenderStatusBar renders the bottom status bar: key hints on the left,
// free text on the right.
func RenderStatusBar(width int, hints, right string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Width(width)

	left := " " + hints
	right += " "

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		// Hints win; the right side is informational.
		return style.Render(left)
	}
	return style.Render(left + spaces(padding) + right)
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
