package cmd

import (
	"fmt"
	"os"

	"github.com/theirongolddev/voxdeck/internal/config"

	"github.com/spf13/cobra"
)

var (
	flagTransport string
	flagOfferURL  string
	flagWSURL     string
	flagAPIKey    string
	flagEnvFiles  []string
	flagLogLevel  string
	flagNoArchive bool
	flagQuiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "voxdeck",
	Short: "Terminal client for real-time voice agents",
	Long: "Connect to a voice agent over WebRTC, follow the conversation and " +
		"watch per-stage latency and token usage as it happens.",
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagTransport, "transport", "t", "", "Transport: webrtc or websocket")
	pf.StringVarP(&flagOfferURL, "offer-url", "u", "", "WebRTC offer endpoint (overrides config and "+config.EnvOfferURL+")")
	pf.StringVar(&flagWSURL, "ws-url", "", "WebSocket endpoint for the websocket transport")
	pf.StringVar(&flagAPIKey, "api-key", "", "Bearer key sent with the offer")
	pf.StringSliceVar(&flagEnvFiles, "env-file", nil, "dotenv files to load (default .env)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flagNoArchive, "no-archive", false, "Do not archive finished sessions")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig resolves settings: config file, then dotenv and VOXDECK_*
// variables, then flags.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(flagEnvFiles...); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	if flagTransport != "" {
		cfg.Connection.Transport = flagTransport
	}
	if flagOfferURL != "" {
		cfg.Connection.OfferURL = flagOfferURL
	}
	if flagWSURL != "" {
		cfg.Connection.WebSocketURL = flagWSURL
		if flagTransport == "" && flagOfferURL == "" {
			cfg.Connection.Transport = config.TransportWebSocket
		}
	}
	if flagAPIKey != "" {
		cfg.Connection.APIKey = flagAPIKey
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagNoArchive {
		cfg.Archive.Enabled = false
	}
	cfg.Normalize()

	if cfg.Connection.Transport == config.TransportWebSocket && cfg.Connection.WebSocketURL == "" {
		return cfg, fmt.Errorf("websocket transport needs --ws-url or %s", config.EnvWSURL)
	}
	return cfg, nil
}

func progressf(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
