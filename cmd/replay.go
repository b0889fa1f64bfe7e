package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/transcript"
	"github.com/theirongolddev/voxdeck/internal/transport"

	"github.com/spf13/cobra"
)

var (
	flagReplayInterval time.Duration
	flagReplayArchive  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Drive a JSONL capture of RTVI messages through the pipeline",
	Long: "Replay reads one RTVI envelope per line, folds it through the same " +
		"conversation and telemetry pipeline as a live session, and prints " +
		"the resulting transcript and latency summary.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().DurationVar(&flagReplayInterval, "interval", 0, "Pause between frames")
	replayCmd.Flags().BoolVar(&flagReplayArchive, "archive", false, "Also save the replayed session to the archive")
	rootCmd.AddCommand(replayCmd)
}

// captureArchiver keeps the final summary and forwards it when next is set.
type captureArchiver struct {
	next live.Archiver
	sum  model.SessionSummary
	done bool
}

func (c *captureArchiver) SaveSession(ctx context.Context, sum model.SessionSummary) error {
	c.sum, c.done = sum, true
	if c.next == nil {
		return nil
	}
	return c.next.SaveSession(ctx, sum)
}

func runReplay(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	capture := &captureArchiver{}
	if flagReplayArchive {
		archive, err := openArchive(cfg)
		if err != nil {
			return err
		}
		if archive != nil {
			defer func() { _ = archive.Close() }()
			capture.next = archive
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src := &transport.Replay{Path: args[0], Interval: flagReplayInterval}
	hub := newHub(cfg, capture)

	progressf("  Replaying %s...\n", args[0])
	if err := hub.Run(ctx, src); err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}
	if n := src.Skipped(); n > 0 {
		fmt.Fprintln(os.Stderr, cli.Warn(fmt.Sprintf("  Skipped %d malformed lines", n)))
	}
	if !capture.done {
		fmt.Println("\n  Capture contained no metrics or messages.")
		return nil
	}

	printSummary(capture.sum, transcript.NormalizeAll(capture.sum.Messages))
	return nil
}
