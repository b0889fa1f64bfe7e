package components

import (
	"strings"

	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// View is one selectable main-area view.
type View struct {
	Name string
	Key  rune
}

// Views lists the main-area views in toolbar order.
var Views = []View{
	{Name: "Visualizer", Key: '1'},
	{Name: "Conversation", Key: '2'},
}

const viewGap = 1

// viewLabel is the text of a view control, excluding padding.
func viewLabel(v View) string {
	return string(v.Key) + " " + v.Name
}

// RenderViewBar renders the view controls with the active one highlighted.
func RenderViewBar(active int) string {
	t := theme.Active

	on := lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		Background(t.SurfaceBright).
		Bold(true).
		Padding(0, 1)
	off := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Padding(0, 1)
	gap := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", viewGap))

	parts := make([]string, len(Views))
	for i, v := range Views {
		if i == active {
			parts[i] = on.Render(viewLabel(v))
		} else {
			parts[i] = off.Render(viewLabel(v))
		}
	}
	return strings.Join(parts, gap)
}

// ViewAtX returns the view control under column x of a RenderViewBar
// string, or -1.
func ViewAtX(x int) int {
	pos := 0
	for i, v := range Views {
		w := lipgloss.Width(viewLabel(v)) + 2
		if x >= pos && x < pos+w {
			return i
		}
		pos += w + viewGap
	}
	return -1
}

// ViewByKey returns the view index bound to key, or -1.
func ViewByKey(key rune) int {
	for i, v := range Views {
		if v.Key == key {
			return i
		}
	}
	return -1
}
