// Package cmd implements the voxdeck CLI commands.
package cmd

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	c := cfg.Connection
	fmt.Println("  [Connection]")
	fmt.Printf("    Transport:      %s\n", c.Transport)
	fmt.Printf("    Offer URL:      %s\n", c.OfferURL)
	if c.WebSocketURL != "" {
		fmt.Printf("    WebSocket URL:  %s\n", c.WebSocketURL)
	}
	if c.APIKey != "" {
		fmt.Printf("    API key:        %s\n", maskAPIKey(c.APIKey))
	} else {
		fmt.Println("    API key:        not configured")
	}
	if len(c.ICEServers) > 0 {
		fmt.Printf("    ICE servers:    %s\n", strings.Join(c.ICEServers, ", "))
	}
	fmt.Printf("    Assistant text: %s\n", c.AssistantText)
	fmt.Printf("    Auto connect:   %v\n", c.AutoConnect)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme:        %s\n", cfg.Appearance.Theme)
	fmt.Printf("    Themes:       %s\n", strings.Join(theme.Names(), ", "))
	fmt.Printf("    Default view: %s\n", cfg.Appearance.DefaultView)
	fmt.Printf("    Drawer:       %d cols, open=%v\n", cfg.Appearance.DrawerWidth, cfg.Appearance.DrawerOpen)
	fmt.Println()

	fmt.Println("  [Archive]")
	fmt.Printf("    Enabled: %v\n", cfg.Archive.Enabled)
	fmt.Printf("    Path:    %s\n", config.ArchivePath(cfg))
	fmt.Println()

	fmt.Println("  [Monitor]")
	fmt.Printf("    Address:   %s\n", cfg.Monitor.Addr)
	fmt.Printf("    Events:    %d\n", cfg.Monitor.EventBuffer)
	fmt.Printf("    Reconnect: %v\n", cfg.Monitor.Reconnect)
	fmt.Println()

	fmt.Println("  [Log]")
	fmt.Printf("    Level: %s\n", cfg.Log.Level)
	fmt.Printf("    File:  %s\n", config.LogPath(cfg))
	fmt.Println()

	fmt.Println("  Run `voxdeck setup` to reconfigure.")
	return nil
}
