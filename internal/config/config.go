// Package config loads and saves voxdeck's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all voxdeck configuration.
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Appearance AppearanceConfig `toml:"appearance"`
	Archive    ArchiveConfig    `toml:"archive"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Log        LogConfig        `toml:"log"`
}

// ConnectionConfig describes how to reach the voice agent.
type ConnectionConfig struct {
	Transport     string   `toml:"transport"`
	OfferURL      string   `toml:"offer_url"`
	WebSocketURL  string   `toml:"websocket_url,omitempty"`
	APIKey        string   `toml:"api_key,omitempty"`
	ICEServers    []string `toml:"ice_servers,omitempty"`
	AssistantText string   `toml:"assistant_text"`
	AutoConnect   bool     `toml:"auto_connect"`
}

// AppearanceConfig holds theme and layout settings.
type AppearanceConfig struct {
	Theme       string `toml:"theme"`
	DefaultView string `toml:"default_view"`
	DrawerWidth int    `toml:"drawer_width"`
	DrawerOpen  bool   `toml:"drawer_open"`
}

// ArchiveConfig controls the session archive.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// MonitorConfig holds headless monitor settings.
type MonitorConfig struct {
	Addr        string `toml:"addr"`
	EventBuffer int    `toml:"event_buffer"`
	Reconnect   bool   `toml:"reconnect"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

// Transports.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Views.
const (
	ViewVisualizer   = "visualizer"
	ViewConversation = "conversation"
)

// Drawer width bounds, in terminal columns.
const (
	MinDrawerWidth     = 32
	MaxDrawerWidth     = 80
	DefaultDrawerWidth = 40
)

// Environment overrides.
const (
	EnvOfferURL = "VOXDECK_OFFER_URL"
	EnvWSURL    = "VOXDECK_WS_URL"
	EnvAPIKey   = "VOXDECK_API_KEY"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Connection: ConnectionConfig{
			Transport:     TransportWebRTC,
			OfferURL:      "http://localhost:7860/api/offer",
			AssistantText: "tts",
		},
		Appearance: AppearanceConfig{
			Theme:       "flexoki-dark",
			DefaultView: ViewVisualizer,
			DrawerWidth: DefaultDrawerWidth,
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
		Monitor: MonitorConfig{
			Addr:        "127.0.0.1:9477",
			EventBuffer: 200,
			Reconnect:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voxdeck")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "voxdeck")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "voxdeck")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "voxdeck")
}

// ArchivePath returns the session database path.
func ArchivePath(cfg Config) string {
	if cfg.Archive.Path != "" {
		return cfg.Archive.Path
	}
	return filepath.Join(DataDir(), "sessions.db")
}

// LogPath returns the log file path used while the TUI owns the terminal.
func LogPath(cfg Config) string {
	if cfg.Log.File != "" {
		return cfg.Log.File
	}
	return filepath.Join(DataDir(), "voxdeck.log")
}

// Load reads the config file, returning defaults if it doesn't exist.
// Environment overrides are applied last.
func Load() (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// LoadFile reads the config file without environment overrides. Use it
// before Save so overrides are not written back.
func LoadFile() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none)
// into the process environment. Missing files are ignored and variables
// already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides connection settings from VOXDECK_* variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvOfferURL); v != "" {
		cfg.Connection.OfferURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		cfg.Connection.WebSocketURL = v
		if os.Getenv(EnvOfferURL) == "" {
			cfg.Connection.Transport = TransportWebSocket
		}
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Connection.APIKey = v
	}
}

// Normalize clamps out-of-range values to their defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	c.Connection.Transport = strings.ToLower(strings.TrimSpace(c.Connection.Transport))
	if c.Connection.Transport != TransportWebRTC && c.Connection.Transport != TransportWebSocket {
		c.Connection.Transport = def.Connection.Transport
	}
	switch c.Connection.AssistantText {
	case "tts", "llm", "transcription":
	default:
		c.Connection.AssistantText = def.Connection.AssistantText
	}
	if c.Appearance.DefaultView != ViewVisualizer && c.Appearance.DefaultView != ViewConversation {
		c.Appearance.DefaultView = def.Appearance.DefaultView
	}
	c.Appearance.DrawerWidth = ClampDrawerWidth(c.Appearance.DrawerWidth)
	if c.Monitor.EventBuffer <= 0 {
		c.Monitor.EventBuffer = def.Monitor.EventBuffer
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = def.Monitor.Addr
	}
}

// ClampDrawerWidth bounds w to the allowed drawer range. Zero means default.
func ClampDrawerWidth(w int) int {
	switch {
	case w == 0:
		return DefaultDrawerWidth
	case w < MinDrawerWidth:
		return MinDrawerWidth
	case w > MaxDrawerWidth:
		return MaxDrawerWidth
	}
	return w
}
