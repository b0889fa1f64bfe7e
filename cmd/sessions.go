package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/store"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions",
	RunE:  runSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one archived session with its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an archived session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show")
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func withArchive(fn func(ctx context.Context, a *store.Archive) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := store.Open(config.ArchivePath(cfg))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = a.Close() }()
	return fn(context.Background(), a)
}

func runSessions(_ *cobra.Command, _ []string) error {
	return withArchive(func(ctx context.Context, a *store.Archive) error {
		rows, err := a.ListSessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("\n  No sessions archived yet.")
			return nil
		}
		total, err := a.SessionCount(ctx)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  showing %d of %d", len(rows), total)))
		fmt.Println()

		out := make([][]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, []string{
				shortID(r.SessionID),
				r.StartedAt.Local().Format("Jan 02 15:04"),
				truncate(r.Source, 10),
				cli.FormatDuration(r.DurationSecs),
				cli.FormatMs(r.MeanTTFB.Average()),
				cli.FormatTokens(r.Cumulative.Total),
				cli.FormatNumber(int64(r.MessageCount)),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"ID", "Start", "Source", "Duration", "Avg TTFB", "Tokens", "Msgs"},
			Rows:    out,
		}))
		return nil
	})
}

// resolveSessionID expands an id prefix as printed by `sessions`.
func resolveSessionID(ctx context.Context, a *store.Archive, prefix string) (string, error) {
	rows, err := a.ListSessions(ctx, 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range rows {
		if r.SessionID == prefix {
			return prefix, nil
		}
		if len(prefix) >= 4 && len(r.SessionID) >= len(prefix) && r.SessionID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", prefix)
			}
			match = r.SessionID
		}
	}
	if match == "" {
		return "", fmt.Errorf("session %s: %w", prefix, store.ErrNotFound)
	}
	return match, nil
}

func runSessionsShow(_ *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *store.Archive) error {
		id, err := resolveSessionID(ctx, a, args[0])
		if err != nil {
			return err
		}
		sum, err := a.LoadSession(ctx, id)
		if err != nil {
			return err
		}
		texts, err := a.DisplayText(ctx, id)
		if err != nil {
			return err
		}
		printSummary(sum, texts)
		return nil
	})
}

func runSessionsDelete(_ *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *store.Archive) error {
		id, err := resolveSessionID(ctx, a, args[0])
		if err != nil {
			return err
		}
		if err := a.DeleteSession(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no archived session %s", args[0])
			}
			return err
		}
		fmt.Printf("  Deleted session %s\n", shortID(id))
		return nil
	})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
