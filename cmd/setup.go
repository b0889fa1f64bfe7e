package cmd

import (
	"errors"
	"fmt"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/tui"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Start from the file alone so env overrides are not saved.
	cfg, err := config.LoadFile()
	if err != nil {
		return err
	}

	cfg, err = tui.RunSetup(cfg)
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println("  Setup cancelled, nothing saved.")
		return nil
	}
	if err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `voxdeck setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
