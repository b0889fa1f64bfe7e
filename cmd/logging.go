package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/config"
)

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// setupLogging installs the default slog logger. With toFile the log goes
// to the configured file, since the TUI owns the terminal; otherwise to
// stderr. The returned func closes the file.
func setupLogging(cfg config.Config, toFile bool) (func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}

	if toFile {
		path := config.LogPath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return closer, fmt.Errorf("create log directory: %w", err)
		}
		//nolint:gosec // log path is configured by the local user
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})
	slog.SetDefault(slog.New(h))
	return closer, nil
}
