package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var flagConnect bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive voice client (default)",
	RunE:  runTUI,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagConnect, "connect", "c", false, "Connect on launch")
	tuiCmd.Flags().BoolVarP(&flagConnect, "connect", "c", false, "Connect on launch")
	rootCmd.AddCommand(tuiCmd)
}

// saveAppearance writes UI and setup changes without persisting env or
// flag overrides.
func saveAppearance(c config.Config) error {
	disk, err := config.LoadFile()
	if err != nil {
		return err
	}
	disk.Appearance = c.Appearance
	disk.Connection.OfferURL = c.Connection.OfferURL
	disk.Connection.AutoConnect = c.Connection.AutoConnect
	return config.Save(disk)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() { _ = archive.Close() }()
	}

	// Force TrueColor profile so all background styling produces ANSI codes
	lipgloss.SetColorProfile(termenv.TrueColor)

	app := tui.NewApp(tui.Options{
		Hub:       newHub(cfg, archiverOf(archive)),
		Config:    cfg,
		Dial:      newSource,
		Save:      saveAppearance,
		NeedSetup: !config.Exists(),
		Connect:   flagConnect,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	final, err := p.Run()
	if m, ok := final.(tui.App); ok {
		m.Close(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
