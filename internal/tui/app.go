// Package tui provides the interactive Bubble Tea client for voxdeck.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/transport"
	"github.com/theirongolddev/voxdeck/internal/tui/components"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// hubMsg carries one hub update into the program.
type hubMsg live.Update

// hubClosedMsg is sent when the update subscription closes.
type hubClosedMsg struct{}

// sessionEndedMsg is sent when a connection's Run returns.
type sessionEndedMsg struct {
	err error
}

type tickMsg time.Time

// connectMsg asks the model to start a connection.
type connectMsg struct{}

// connection is the running hub session, shared between model copies.
type connection struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a new App.
type Options struct {
	Hub    *live.Hub
	Config config.Config
	// Dial builds a fresh source from the current config on each connect.
	Dial func(config.Config) transport.Source
	// Save persists config changes. Nil disables persistence.
	Save func(config.Config) error
	// NeedSetup shows the first-run form before anything else.
	NeedSetup bool
	// Connect starts a connection on launch regardless of config.
	Connect bool
}

// App is the root Bubble Tea model.
type App struct {
	hub     *live.Hub
	dial    func(config.Config) transport.Source
	save    func(config.Config) error
	cfg     config.Config
	updates <-chan live.Update
	stop    func()
	conn    *connection

	// UI state
	width       int
	height      int
	view        int
	showHelp    bool
	drawerOpen  bool
	drawerWidth int
	dragging    bool
	scroll      int
	autoConnect bool
	levels      []float64
	notice      string

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals *setupValues

	spinner spinner.Model
}

const (
	minTerminalWidth = 60
	minContentHeight = 5
	levelHistory     = 32
	tickInterval     = 80 * time.Millisecond
	updateBuffer     = 64
	drawerStep       = 4
)

// NewApp creates a new TUI app model.
func NewApp(opts Options) App {
	cfg := opts.Config
	cfg.Normalize()
	theme.SetActive(cfg.Appearance.Theme)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	updates, stop := opts.Hub.Subscribe(updateBuffer)

	view := 0
	if cfg.Appearance.DefaultView == config.ViewConversation {
		view = 1
	}

	var form *huh.Form
	vals := &setupValues{}
	if opts.NeedSetup {
		form = newSetupForm(cfg, vals)
	}

	return App{
		hub:         opts.Hub,
		dial:        opts.Dial,
		save:        opts.Save,
		cfg:         cfg,
		updates:     updates,
		stop:        stop,
		view:        view,
		drawerOpen:  cfg.Appearance.DrawerOpen,
		drawerWidth: config.ClampDrawerWidth(cfg.Appearance.DrawerWidth),
		autoConnect: opts.Connect || cfg.Connection.AutoConnect,
		levels:      make([]float64, levelHistory),
		setupForm:   form,
		setupVals:   vals,
		spinner:     sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		waitForUpdate(a.updates),
		a.spinner.Tick,
		tickCmd(),
	}
	switch {
	case a.setupForm != nil:
		cmds = append(cmds, a.setupForm.Init())
	case a.autoConnect:
		cmds = append(cmds, func() tea.Msg { return connectMsg{} })
	}
	return tea.Batch(cmds...)
}

// Close stops the running connection, waits up to timeout for the session
// to be archived, and releases the hub subscription.
func (a App) Close(timeout time.Duration) {
	if a.conn != nil {
		a.conn.cancel()
		select {
		case <-a.conn.done:
		case <-time.After(timeout):
			slog.Warn("session did not finish before exit")
		}
	}
	a.stop()
}

// Connected reports whether a connection is running.
func (a App) Connected() bool {
	return a.conn != nil
}

// connect starts a hub session; the returned command blocks until it ends.
func (a *App) connect() tea.Cmd {
	if a.conn != nil || a.dial == nil {
		return nil
	}
	src := a.dial(a.cfg)
	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{cancel: cancel, done: make(chan struct{})}
	a.conn = conn
	a.notice = ""
	hub := a.hub
	return func() tea.Msg {
		defer close(conn.done)
		err := hub.Run(ctx, src)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return sessionEndedMsg{err: err}
	}
}

func (a *App) disconnect() {
	if a.conn == nil {
		return
	}
	a.conn.cancel()
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		return a, nil

	case hubMsg:
		return a, waitForUpdate(a.updates)

	case connectMsg:
		return a, a.connect()

	case hubClosedMsg:
		return a, nil

	case sessionEndedMsg:
		a.conn = nil
		if msg.err != nil {
			a.notice = msg.err.Error()
		}
		return a, nil

	case tickMsg:
		a.levels = append(a.levels[1:], a.hub.Status().Level)
		return a, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.MouseMsg:
		if a.showHelp || a.setupForm != nil {
			return a, nil
		}
		return a.updateMouse(msg)

	case tea.KeyMsg:
		key := msg.String()

		if key == "ctrl+c" {
			a.disconnect()
			return a, tea.Quit
		}

		if a.setupForm != nil {
			return a.updateSetupForm(msg)
		}

		if key == "?" {
			a.showHelp = !a.showHelp
			return a, nil
		}
		if a.showHelp {
			a.showHelp = false
			return a, nil
		}

		return a.updateKey(key)
	}

	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	return a, nil
}

func (a App) updateKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		a.disconnect()
		return a, tea.Quit
	case "c":
		if a.conn != nil {
			a.disconnect()
			return a, nil
		}
		return a, a.connect()
	case "m":
		a.drawerOpen = !a.drawerOpen
		a.cfg.Appearance.DrawerOpen = a.drawerOpen
		return a, a.persist()
	case "[":
		return a.resizeDrawer(a.drawerWidth - drawerStep)
	case "]":
		return a.resizeDrawer(a.drawerWidth + drawerStep)
	case "t":
		next := theme.Next(a.cfg.Appearance.Theme)
		a.cfg.Appearance.Theme = next.Name
		theme.SetActive(next.Name)
		a.spinner.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)
		return a, a.persist()
	case "v", "tab":
		a.view = (a.view + 1) % len(components.Views)
		a.scroll = 0
		return a, nil
	case "j", "down":
		if a.scroll > 0 {
			a.scroll--
		}
		return a, nil
	case "k", "up":
		a.scroll = min(a.scroll+1, a.maxScroll())
		return a, nil
	case "g":
		a.scroll = a.maxScroll()
		return a, nil
	case "G":
		a.scroll = 0
		return a, nil
	}

	if len(key) == 1 {
		if v := components.ViewByKey(rune(key[0])); v >= 0 {
			a.view = v
			a.scroll = 0
		}
	}
	return a, nil
}

func (a App) resizeDrawer(w int) (tea.Model, tea.Cmd) {
	a.drawerWidth = config.ClampDrawerWidth(w)
	if !a.drawerOpen {
		return a, nil
	}
	a.cfg.Appearance.DrawerWidth = a.drawerWidth
	return a, a.persist()
}

// ─── Mouse Support ──────────────────────────────────────────────

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Action == tea.MouseActionMotion && a.dragging:
		a.drawerWidth = config.ClampDrawerWidth(a.width - msg.X)
		return a, nil

	case msg.Action == tea.MouseActionRelease && a.dragging:
		a.dragging = false
		a.cfg.Appearance.DrawerWidth = a.drawerWidth
		return a, a.persist()

	case msg.Button == tea.MouseButtonWheelUp:
		a.scroll = min(a.scroll+1, a.maxScroll())
		return a, nil

	case msg.Button == tea.MouseButtonWheelDown:
		if a.scroll > 0 {
			a.scroll--
		}
		return a, nil

	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		if msg.Y == 0 {
			if v := a.viewAtX(msg.X); v >= 0 {
				a.view = v
				a.scroll = 0
			}
			return a, nil
		}
		if a.onDrawerEdge(msg.X) {
			a.dragging = true
		}
		return a, nil
	}
	return a, nil
}

// viewAtX maps a toolbar column to a view control.
func (a App) viewAtX(x int) int {
	return components.ViewAtX(x - lipgloss.Width(renderBrand()))
}

// onDrawerEdge reports whether column x is the drawer's resize handle.
func (a App) onDrawerEdge(x int) bool {
	if !a.drawerOpen {
		return false
	}
	edge := a.width - a.drawerWidth
	return x == edge || x == edge-1
}

// persist saves the current config in the background.
func (a App) persist() tea.Cmd {
	if a.save == nil {
		return nil
	}
	cfg, save := a.cfg, a.save
	return func() tea.Msg {
		if err := save(cfg); err != nil {
			slog.Warn("saving config", "err", err)
		}
		return nil
	}
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.applySetup()
		a.setupForm = nil
		cmds := []tea.Cmd{a.persist()}
		if a.autoConnect || a.cfg.Connection.AutoConnect {
			cmds = append(cmds, a.connect())
		}
		return a, tea.Batch(cmds...)
	case huh.StateAborted:
		a.setupForm = nil
		return a, nil
	}
	return a, cmd
}

func waitForUpdate(ch <-chan live.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return hubClosedMsg{}
		}
		return hubMsg(u)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
