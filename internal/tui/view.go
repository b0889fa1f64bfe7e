package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/tui/components"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  voxdeck needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	sections := []struct {
		name     string
		bindings []struct{ key, desc string }
	}{
		{"Session", []struct{ key, desc string }{
			{"c", "Connect / Disconnect"},
			{"v Tab", "Switch view"},
			{"1 2", "Visualizer / Conversation"},
			{"j k", "Scroll conversation"},
			{"g G", "Oldest / Latest message"},
		}},
		{"Metrics", []struct{ key, desc string }{
			{"m", "Toggle metrics drawer"},
			{"[ ]", "Narrow / Widen drawer"},
			{"drag", "Resize drawer by its edge"},
		}},
		{"General", []struct{ key, desc string }{
			{"t", "Cycle theme"},
			{"?", "Toggle help"},
			{"q", "Quit"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.name))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-6s", bind.key)),
				descStyle.Render(bind.desc))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
		cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w, h := a.width, a.height
	st := a.hub.Status()

	header := a.renderToolbar(st)
	statusBar := components.RenderStatusBar(w,
		"[c]onnect  [v]iew  [m]etrics  [t]heme  [?]help  [q]uit",
		a.statusRight(st))

	contentH := h - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	mainW := a.mainWidth()
	var content string
	if a.view == 0 {
		content = a.renderVisualizer(st, mainW, contentH)
	} else {
		content = a.renderConversation(mainW, contentH)
	}
	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, mainW, t.Background)

	if a.drawerOpen {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, a.renderDrawer(contentH))
	}

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// mainWidth is the width left for the active view.
func (a App) mainWidth() int {
	if !a.drawerOpen {
		return a.width
	}
	w := a.width - a.drawerWidth
	if w < 0 {
		w = 0
	}
	return w
}

func (a App) contentHeight() int {
	h := a.height - 2
	if h < minContentHeight {
		h = minContentHeight
	}
	return h
}

func renderBrand() string {
	t := theme.Active
	return lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.Surface).
		Bold(true).
		Render(" ◈ voxdeck ")
}

func (a App) renderToolbar(st live.Status) string {
	t := theme.Active
	left := renderBrand() + components.RenderViewBar(a.view)
	right := a.renderPill(st)
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	fill := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", gap))
	return lipgloss.NewStyle().MaxWidth(a.width).Render(left + fill + right)
}

// renderPill shows the connection state as a colored dot and label.
func (a App) renderPill(st live.Status) string {
	t := theme.Active
	label, color := connectionLabel(st, a.conn != nil)
	dot := lipgloss.NewStyle().Foreground(color).Background(t.SurfaceBright).Render(" ●")
	text := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Render(" " + label + " ")
	return dot + text
}

func connectionLabel(st live.Status, running bool) (string, lipgloss.Color) {
	t := theme.Active
	switch st.State {
	case rtvi.StateReady:
		return "Ready", t.Green
	case rtvi.StateConnected:
		return "Connected", t.Green
	case rtvi.StateConnecting:
		return "Connecting", t.Yellow
	case rtvi.StateFailed:
		return "Failed", t.Red
	}
	if running {
		return "Connecting", t.Yellow
	}
	return "Disconnected", t.TextDim
}

func (a App) statusRight(st live.Status) string {
	switch {
	case a.notice != "":
		return truncStr(a.notice, a.width/2)
	case st.LastError != "":
		return truncStr(st.LastError, a.width/2)
	case st.Source != "":
		return fmt.Sprintf("%s · %d events", st.Source, st.Events)
	}
	return ""
}

// ─── Visualizer ─────────────────────────────────────────────────

func agentLabel(agent string) string {
	switch agent {
	case live.AgentListening:
		return "Listening"
	case live.AgentThinking:
		return "Thinking"
	case live.AgentSpeaking:
		return "Speaking"
	}
	return "Idle"
}

func (a App) renderVisualizer(st live.Status, w, h int) string {
	t := theme.Active
	bg := lipgloss.NewStyle().Background(t.Background)
	muted := bg.Foreground(t.TextMuted)
	strong := bg.Foreground(t.TextPrimary).Bold(true)

	var b strings.Builder
	switch {
	case a.conn == nil && st.State != rtvi.StateFailed:
		b.WriteString(strong.Render("Not connected"))
		b.WriteString("\n\n")
		b.WriteString(muted.Render("Press c to connect to the voice agent"))
	case a.conn == nil:
		b.WriteString(bg.Foreground(t.Red).Bold(true).Render("Connection failed"))
		b.WriteString("\n\n")
		b.WriteString(muted.Render("Press c to try again"))
	case st.State == rtvi.StateConnecting || (st.State == rtvi.StateDisconnected && !st.BotReady):
		b.WriteString(a.spinner.View())
		b.WriteString(muted.Render(" Connecting..."))
	default:
		barsH := h - 6
		if barsH > 12 {
			barsH = 12
		}
		if barsH < 3 {
			barsH = 3
		}
		levels := a.levels
		if n := (w - 4) / 3; n > 0 && n < len(levels) {
			levels = levels[len(levels)-n:]
		}
		b.WriteString(components.LevelBars(levels, t.Wave, barsH))
		b.WriteString("\n\n")
		state := agentLabel(st.Agent)
		if st.Agent == live.AgentThinking {
			state = a.spinner.View() + " " + state
		}
		b.WriteString(strong.Render(state))
		b.WriteString("\n")
		meterW := w / 3
		if meterW < 10 {
			meterW = 10
		}
		b.WriteString(components.LevelMeter("Bot", st.Level, 4, meterW))
		if st.BotVersion != "" {
			b.WriteString("\n")
			b.WriteString(bg.Foreground(t.TextDim).Render("bot " + st.BotVersion))
		}
	}

	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, b.String(),
		lipgloss.WithWhitespaceBackground(t.Background))
}

// ─── Conversation ───────────────────────────────────────────────

// conversationLines renders the transcript as wrapped lines of width w.
func (a App) conversationLines(w int) []string {
	t := theme.Active
	conv := a.hub.Conversation()
	lines := conv.Rendered()
	interim := conv.Interim()

	bg := lipgloss.NewStyle().Background(t.Background)
	if len(lines) == 0 && interim == "" {
		return []string{
			bg.Foreground(t.TextPrimary).Bold(true).Render("No messages yet"),
			bg.Foreground(t.TextMuted).Render("Start speaking to begin the conversation!"),
		}
	}

	textW := w - 4
	if textW < 10 {
		textW = 10
	}
	body := bg.Foreground(t.TextPrimary).Width(textW).PaddingLeft(2)
	clock := bg.Foreground(t.TextDim)

	var out []string
	for _, l := range lines {
		who := bg.Foreground(t.Accent).Bold(true).Render("You")
		if l.Role == model.RoleAssistant {
			who = bg.Foreground(t.Magenta).Bold(true).Render("Assistant")
		}
		out = append(out, who+clock.Render("  "+cli.FormatClock(l.CreatedAt)))
		out = append(out, strings.Split(body.Render(l.Text), "\n")...)
		out = append(out, "")
	}
	if interim != "" {
		out = append(out, bg.Foreground(t.Accent).Render("You")+clock.Render("  ..."))
		italic := body.Foreground(t.TextMuted).Italic(true)
		out = append(out, strings.Split(italic.Render(interim), "\n")...)
	}
	return out
}

// visibleWindow returns the h lines ending scroll lines above the tail.
func visibleWindow(lines []string, h, scroll int) []string {
	if len(lines) <= h {
		return lines
	}
	end := len(lines) - scroll
	if end < h {
		end = h
	}
	return lines[end-h : end]
}

func (a App) renderConversation(w, h int) string {
	lines := a.conversationLines(w - 2)
	if a.hub.Conversation().Len() == 0 && a.hub.Conversation().Interim() == "" {
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, strings.Join(lines, "\n"),
			lipgloss.WithWhitespaceBackground(theme.Active.Background))
	}
	pad := lipgloss.NewStyle().Background(theme.Active.Background).PaddingLeft(1)
	return pad.Render(strings.Join(visibleWindow(lines, h, a.scroll), "\n"))
}

func (a App) maxScroll() int {
	n := len(a.conversationLines(a.mainWidth()-2)) - a.contentHeight()
	if n < 0 {
		return 0
	}
	return n
}

// ─── Helpers ────────────────────────────────────────────────────

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
	}
	return strings.Join(lines, "\n")
}
