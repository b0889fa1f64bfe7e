package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theirongolddev/voxdeck/internal/cli"
	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/monitor"
	"github.com/theirongolddev/voxdeck/internal/transport"

	"github.com/spf13/cobra"
)

type monitorRuntimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
}

var (
	flagMonitorAddr         string
	flagMonitorDetach       bool
	flagMonitorPIDFile      string
	flagMonitorLogFile      string
	flagMonitorEventsBuffer int
	flagMonitorNoReconnect  bool
	flagMonitorReplay       string
	flagMonitorChild        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a headless session with HTTP, SSE and Prometheus endpoints",
	RunE:  runMonitor,
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor process and API status",
	RunE:  runMonitorStatus,
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running monitor",
	RunE:  runMonitorStop,
}

func init() {
	defaultPID := filepath.Join(config.DataDir(), "voxdeck-monitor.pid")
	defaultLog := filepath.Join(config.DataDir(), "voxdeck-monitor.log")

	monitorCmd.PersistentFlags().StringVar(&flagMonitorAddr, "addr", "", "HTTP listen address (default from config)")
	monitorCmd.PersistentFlags().StringVar(&flagMonitorPIDFile, "pid-file", defaultPID, "PID file path")
	monitorCmd.PersistentFlags().StringVar(&flagMonitorLogFile, "log-file", defaultLog, "Log file path for detached mode")
	monitorCmd.PersistentFlags().IntVar(&flagMonitorEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	monitorCmd.Flags().BoolVar(&flagMonitorDetach, "detach", false, "Run the monitor as a background process")
	monitorCmd.Flags().BoolVar(&flagMonitorNoReconnect, "no-reconnect", false, "Keep serving the finished session instead of reconnecting")
	monitorCmd.Flags().StringVar(&flagMonitorReplay, "replay", "", "Drive the monitor from a JSONL capture instead of a live agent")
	monitorCmd.Flags().BoolVar(&flagMonitorChild, "child", false, "Internal: mark detached child process")
	_ = monitorCmd.Flags().MarkHidden("child")

	monitorCmd.AddCommand(monitorStatusCmd)
	monitorCmd.AddCommand(monitorStopCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(_ *cobra.Command, _ []string) error {
	if flagMonitorDetach && flagMonitorChild {
		return errors.New("invalid monitor launch mode")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagMonitorAddr != "" {
		cfg.Monitor.Addr = flagMonitorAddr
	}
	if flagMonitorEventsBuffer > 0 {
		cfg.Monitor.EventBuffer = flagMonitorEventsBuffer
	}
	if flagMonitorNoReconnect || flagMonitorReplay != "" {
		cfg.Monitor.Reconnect = false
	}

	if flagMonitorDetach {
		return startMonitorDetached(cfg)
	}
	return runMonitorForeground(cfg)
}

func startMonitorDetached(cfg config.Config) error {
	if err := ensureMonitorNotRunning(flagMonitorPIDFile); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := filterDetachArg(os.Args[1:])
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagMonitorPIDFile), 0o750); err != nil {
		return fmt.Errorf("create monitor directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagMonitorLogFile), 0o750); err != nil {
		return fmt.Errorf("create monitor log directory: %w", err)
	}

	//nolint:gosec // monitor log path is configured by the local user
	logf, err := os.OpenFile(flagMonitorLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open monitor log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached monitor: %w", err)
	}

	fmt.Printf("  Started monitor (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagMonitorPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", cfg.Monitor.Addr)
	fmt.Printf("  Log: %s\n", flagMonitorLogFile)
	return nil
}

func runMonitorForeground(cfg config.Config) error {
	if err := ensureMonitorNotRunning(flagMonitorPIDFile); err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(filepath.Dir(flagMonitorPIDFile), 0o750); err != nil {
		return fmt.Errorf("create monitor directory: %w", err)
	}

	pid := os.Getpid()
	if err := writePID(flagMonitorPIDFile, pid); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagMonitorPIDFile) }()

	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() { _ = archive.Close() }()
	}

	// One source for the process lifetime so WebRTC reconnects keep pc_id.
	var src transport.Source = newSource(cfg)
	if flagMonitorReplay != "" {
		src = &transport.Replay{Path: flagMonitorReplay}
	}

	state := monitorRuntimeState{
		PID:       pid,
		Addr:      cfg.Monitor.Addr,
		StartedAt: time.Now(),
		Source:    src.Name(),
	}
	_ = writeState(statePath(flagMonitorPIDFile), state)
	defer func() { _ = os.Remove(statePath(flagMonitorPIDFile)) }()

	svc := monitor.New(monitor.Config{
		Addr:         cfg.Monitor.Addr,
		EventsBuffer: cfg.Monitor.EventBuffer,
		Reconnect:    cfg.Monitor.Reconnect,
	}, newHub(cfg, archiverOf(archive)), func() transport.Source { return src })

	fmt.Printf("  voxdeck monitor listening on http://%s\n", cfg.Monitor.Addr)
	fmt.Printf("  Source: %s\n", src.Name())
	fmt.Printf("  Stop with: voxdeck monitor stop --pid-file %s\n", flagMonitorPIDFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runMonitorStatus(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagMonitorPIDFile)
	if err != nil {
		fmt.Printf("  Monitor: not running (pid file not found)\n")
		return nil
	}

	if !processAlive(pid) {
		fmt.Printf("  Monitor: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagMonitorAddr
	if st, err := readState(statePath(flagMonitorPIDFile)); err == nil && st.Addr != "" {
		addr = st.Addr
	}
	if addr == "" {
		addr = config.DefaultConfig().Monitor.Addr
	}

	fmt.Printf("  Monitor PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status check
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st monitor.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	conn := st.Connection
	fmt.Printf("  Connection: %s (%s)\n", conn.State, conn.Source)
	fmt.Printf("  Connects: %d\n", st.Connects)
	fmt.Printf("  Session: %s\n", conn.SessionID)
	fmt.Printf("  Messages: %d\n", conn.Messages)
	fmt.Printf("  TTFB: stt %s  llm %s  tts %s\n",
		cli.FormatMs(st.Summary.TTFB.STTMs),
		cli.FormatMs(st.Summary.TTFB.LLMMs),
		cli.FormatMs(st.Summary.TTFB.TTSMs))
	fmt.Printf("  Tokens: %s\n", cli.FormatNumber(st.Summary.Cumulative.Total))
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runMonitorStop(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagMonitorPIDFile)
	if err != nil {
		return errors.New("monitor is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find monitor process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal monitor process: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = os.Remove(flagMonitorPIDFile)
			_ = os.Remove(statePath(flagMonitorPIDFile))
			fmt.Printf("  Stopped monitor (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("monitor (pid %d) did not exit in time", pid)
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func ensureMonitorNotRunning(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(pid) {
		return fmt.Errorf("monitor already running (pid %d)", pid)
	}
	_ = os.Remove(pidFile)
	_ = os.Remove(statePath(pidFile))
	return nil
}

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func readPID(path string) (int, error) {
	//nolint:gosec // monitor pid path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func statePath(pidFile string) string {
	return pidFile + ".json"
}

func writeState(path string, st monitorRuntimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readState(path string) (monitorRuntimeState, error) {
	var st monitorRuntimeState
	//nolint:gosec // monitor state path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}
