package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/tui/components"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func newTestApp(t *testing.T) App {
	t.Helper()
	cfg := config.DefaultConfig()
	a := NewApp(Options{Hub: live.New(), Config: cfg})
	t.Cleanup(func() { a.Close(time.Second) })
	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(App)
}

func press(t *testing.T, a App, key string) App {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	m, _ := a.Update(msg)
	return m.(App)
}

func TestViewAtXAccountsForBrand(t *testing.T) {
	a := newTestApp(t)
	brand := lipgloss.Width(renderBrand())

	if got := a.viewAtX(0); got != -1 {
		t.Fatalf("viewAtX(0) = %d, want -1", got)
	}
	if got := a.viewAtX(brand); got != 0 {
		t.Fatalf("viewAtX(%d) = %d, want 0", brand, got)
	}
	if got := a.viewAtX(brand + 20); got != 1 {
		t.Fatalf("viewAtX(%d) = %d, want 1", brand+20, got)
	}
}

func TestClickSwitchesView(t *testing.T) {
	a := newTestApp(t)
	x := lipgloss.Width(renderBrand()) + 20
	m, _ := a.Update(tea.MouseMsg{X: x, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	if got := m.(App).view; got != 1 {
		t.Fatalf("view = %d, want 1", got)
	}
}

func TestDrawerToggleAndResize(t *testing.T) {
	a := newTestApp(t)
	if a.drawerOpen {
		t.Fatal("drawer should start closed")
	}
	a = press(t, a, "m")
	if !a.drawerOpen {
		t.Fatal("m should open the drawer")
	}
	if a.drawerWidth != config.DefaultDrawerWidth {
		t.Fatalf("drawerWidth = %d, want %d", a.drawerWidth, config.DefaultDrawerWidth)
	}

	for i := 0; i < 20; i++ {
		a = press(t, a, "]")
	}
	if a.drawerWidth != config.MaxDrawerWidth {
		t.Fatalf("drawerWidth = %d, want %d", a.drawerWidth, config.MaxDrawerWidth)
	}
	for i := 0; i < 20; i++ {
		a = press(t, a, "[")
	}
	if a.drawerWidth != config.MinDrawerWidth {
		t.Fatalf("drawerWidth = %d, want %d", a.drawerWidth, config.MinDrawerWidth)
	}
}

func TestDrawerDragClamps(t *testing.T) {
	a := press(t, newTestApp(t), "m")
	edge := a.width - a.drawerWidth

	m, _ := a.Update(tea.MouseMsg{X: edge, Y: 10, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	a = m.(App)
	if !a.dragging {
		t.Fatal("press on the drawer edge should start a drag")
	}

	m, _ = a.Update(tea.MouseMsg{X: a.width - 50, Y: 10, Action: tea.MouseActionMotion})
	a = m.(App)
	if a.drawerWidth != 50 {
		t.Fatalf("drawerWidth = %d, want 50", a.drawerWidth)
	}

	m, _ = a.Update(tea.MouseMsg{X: 5, Y: 10, Action: tea.MouseActionMotion})
	a = m.(App)
	if a.drawerWidth != config.MaxDrawerWidth {
		t.Fatalf("drawerWidth = %d, want %d", a.drawerWidth, config.MaxDrawerWidth)
	}

	m, _ = a.Update(tea.MouseMsg{X: 5, Y: 10, Action: tea.MouseActionRelease})
	a = m.(App)
	if a.dragging {
		t.Fatal("release should end the drag")
	}
	if a.cfg.Appearance.DrawerWidth != config.MaxDrawerWidth {
		t.Fatalf("saved width = %d, want %d", a.cfg.Appearance.DrawerWidth, config.MaxDrawerWidth)
	}
}

func TestThemeCycle(t *testing.T) {
	a := newTestApp(t)
	before := a.cfg.Appearance.Theme
	a = press(t, a, "t")
	if a.cfg.Appearance.Theme == before {
		t.Fatalf("theme still %q after t", before)
	}
}

func TestViewSwitchKeys(t *testing.T) {
	a := newTestApp(t)
	a = press(t, a, "tab")
	if a.view != 1 {
		t.Fatalf("view = %d after tab, want 1", a.view)
	}
	a = press(t, a, "1")
	if a.view != 0 {
		t.Fatalf("view = %d after 1, want 0", a.view)
	}
	if len(components.Views) != 2 {
		t.Fatalf("views = %d, want 2", len(components.Views))
	}
}

func TestConversationEmptyState(t *testing.T) {
	a := press(t, newTestApp(t), "2")
	out := a.View()
	if !strings.Contains(out, "No messages yet") {
		t.Fatal("empty conversation should show the empty-state title")
	}
	if !strings.Contains(out, "Start speaking to begin the conversation!") {
		t.Fatal("empty conversation should show the hint")
	}
}

func TestConversationShowsNormalizedText(t *testing.T) {
	a := press(t, newTestApp(t), "2")
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a.hub.Apply(rtvi.Event{Kind: rtvi.KindUserTranscription, Text: "Hello hello", Final: true, At: at})
	a.hub.Apply(rtvi.Event{Kind: rtvi.KindBotTTSText, Text: "How How are you", At: at})

	out := a.View()
	if !strings.Contains(out, "Assistant") || !strings.Contains(out, "You") {
		t.Fatal("conversation should label both roles")
	}
	if !strings.Contains(out, "How are you") {
		t.Fatal("assistant text should be normalized")
	}
}

func TestDrawerWaitsForMetrics(t *testing.T) {
	a := press(t, newTestApp(t), "m")
	out := a.View()
	for _, want := range []string{"Token Usage", "Total Conversation Tokens", "Waiting for STT metrics...", "Performance Summary"} {
		if !strings.Contains(out, want) {
			t.Errorf("drawer missing %q", want)
		}
	}
}

func TestDrawerBodyShowsTelemetry(t *testing.T) {
	a := newTestApp(t)
	a.hub.Apply(rtvi.Event{Kind: rtvi.KindMetrics, Metrics: &model.MetricsEvent{
		TTFB: []model.MetricSample{
			{Processor: "DeepgramSTTService#0", Value: 0.25},
			{Processor: "OpenAILLMService#0", Value: 0.5},
			{Processor: "CartesiaTTSService#0", Value: 0.15},
		},
		Characters: []model.MetricSample{{Processor: "CartesiaTTSService#0", Value: 40}},
	}})

	body := drawerBody(a.hub.Session().Snapshot(), 40)
	if strings.Contains(body, "Waiting for") {
		t.Fatal("drawer should chart once a TTFB batch arrived")
	}
	// mean of 250, 500 and 150
	if !strings.Contains(body, "300ms") {
		t.Fatal("performance summary should show the 300ms average")
	}
}

func TestVisibleWindow(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	got := strings.Join(visibleWindow(lines, 2, 0), "")
	if got != "de" {
		t.Fatalf("tail window = %q, want de", got)
	}
	got = strings.Join(visibleWindow(lines, 2, 2), "")
	if got != "bc" {
		t.Fatalf("scrolled window = %q, want bc", got)
	}
	got = strings.Join(visibleWindow(lines, 2, 99), "")
	if got != "ab" {
		t.Fatalf("overscrolled window = %q, want ab", got)
	}
}

func TestValidateOfferURL(t *testing.T) {
	if err := ValidateOfferURL("http://localhost:7860/api/offer"); err != nil {
		t.Fatalf("valid URL rejected: %v", err)
	}
	for _, bad := range []string{"", "localhost:7860", "ftp://x/y"} {
		if ValidateOfferURL(bad) == nil {
			t.Errorf("ValidateOfferURL(%q) = nil, want error", bad)
		}
	}
}
