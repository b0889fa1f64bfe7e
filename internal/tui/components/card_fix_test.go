package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"
)

func init() {
	// Force TrueColor output so ANSI codes are generated in tests
	lipgloss.SetColorProfile(termenv.TrueColor)
}

func TestCardRowBackgroundFill(t *testing.T) {
	theme.SetActive("flexoki-dark")

	short := Panel("Short", "Content", 22)
	tall := Panel("Tall", "Line 1\nLine 2\nLine 3\nLine 4\nLine 5", 22)

	shortLines := lipgloss.Height(short)
	tallLines := lipgloss.Height(tall)
	if shortLines >= tallLines {
		t.Fatalf("short panel height = %d, want < %d", shortLines, tallLines)
	}

	lines := strings.Split(CardRow([]string{tall, short}), "\n")
	if len(lines) != tallLines {
		t.Fatalf("joined height = %d, want %d", len(lines), tallLines)
	}
	for i := shortLines; i < len(lines); i++ {
		if !strings.Contains(lines[i], "\x1b[") {
			t.Errorf("line %d has no ANSI styling: %q", i, lines[i])
		}
	}
}

func TestCardRowWidthConsistency(t *testing.T) {
	theme.SetActive("flexoki-dark")

	short := Panel("Short", "A", 30)
	tall := Panel("Tall", "A\nB\nC\nD\nE\nF", 20)

	joined := CardRow([]string{tall, short})
	want := lipgloss.Width(tall) + lipgloss.Width(short)
	for i, line := range strings.Split(joined, "\n") {
		if got := lipgloss.Width(line); got != want {
			t.Errorf("line %d width = %d, want %d", i, got, want)
		}
	}
}

func TestLayoutRowSumsToTotal(t *testing.T) {
	widths := LayoutRow(40, 3)
	if len(widths) != 3 {
		t.Fatalf("len = %d, want 3", len(widths))
	}
	sum := 0
	for _, w := range widths {
		sum += w
	}
	if sum != 40 {
		t.Fatalf("sum = %d, want 40", sum)
	}
	if widths[0] != 14 || widths[2] != 13 {
		t.Fatalf("widths = %v, want [14 13 13]", widths)
	}
	if LayoutRow(10, 0) != nil {
		t.Fatal("LayoutRow(10, 0) should be nil")
	}
}

func TestStatRowWidth(t *testing.T) {
	theme.SetActive("flexoki-dark")
	row := StatRow([]Stat{
		{Label: "Prompt", Value: "6"},
		{Label: "Completion", Value: "4"},
		{Label: "Total", Value: "10"},
	}, 48)
	if got := lipgloss.Width(row); got != 48 {
		t.Fatalf("StatRow width = %d, want 48", got)
	}
}
