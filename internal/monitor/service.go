// Package monitor provides the headless telemetry service.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/transport"
)

// Config controls the monitor runtime behavior.
type Config struct {
	Addr           string
	EventsBuffer   int
	Reconnect      bool
	ReconnectDelay time.Duration
}

// Snapshot is a compact telemetry state for status/event payloads.
type Snapshot struct {
	At               time.Time          `json:"at"`
	SessionID        string             `json:"session_id"`
	State            string             `json:"state"`
	Agent            string             `json:"agent"`
	TTFB             model.TTFBSnapshot `json:"ttfb"`
	AverageMs        float64            `json:"average_ms"`
	Processing       model.TTFBSnapshot `json:"processing"`
	Usage            model.TokenUsage   `json:"usage"`
	Cumulative       model.TokenUsage   `json:"cumulative"`
	TTFBBatches      int                `json:"ttfb_batches"`
	CharacterBatches int                `json:"character_batches"`
	Messages         int                `json:"messages"`
}

// Delta captures what changed between two snapshots.
type Delta struct {
	TTFBBatches      int   `json:"ttfb_batches"`
	CharacterBatches int   `json:"character_batches"`
	Messages         int   `json:"messages"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	Tokens           int64 `json:"tokens"`
}

func (d Delta) isZero() bool {
	return d.TTFBBatches == 0 &&
		d.CharacterBatches == 0 &&
		d.Messages == 0 &&
		d.Tokens == 0
}

// Event is emitted whenever telemetry or connection state changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time   `json:"started_at"`
	Addr            string      `json:"addr"`
	Connects        int64       `json:"connects"`
	Connection      live.Status `json:"connection"`
	Summary         Snapshot    `json:"summary"`
	LastError       string      `json:"last_error,omitempty"`
	EventCount      int         `json:"event_count"`
	SubscriberCount int         `json:"subscriber_count"`
}

// TranscriptLine is served at /v1/transcript.
type TranscriptLine struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Final     bool       `json:"final"`
}

// Service runs the hub against a source and serves its state over HTTP.
type Service struct {
	cfg     Config
	hub     *live.Hub
	dial    func() transport.Source
	echo    *echo.Echo
	reg     *prometheus.Registry
	metrics *metrics

	mu          sync.RWMutex
	startedAt   time.Time
	connects    int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a monitor that connects with dial and reports hub state.
func New(cfg Config, hub *live.Hub, dial func() transport.Source) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9477"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}

	reg := prometheus.NewRegistry()
	s := &Service{
		cfg:       cfg,
		hub:       hub,
		dial:      dial,
		reg:       reg,
		metrics:   newMetrics(reg),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	s.echo = s.routes()
	return s
}

func (s *Service) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request", "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/status", s.handleStatus)
	e.GET("/v1/history", s.handleHistory)
	e.GET("/v1/transcript", s.handleTranscript)
	e.GET("/v1/events", s.handleEvents)
	e.GET("/v1/stream", s.handleStream)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	return e
}

// Handler exposes the HTTP API.
func (s *Service) Handler() http.Handler { return s.echo }

// Run serves HTTP and keeps a connection open until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	updates, unsubscribe := s.hub.Subscribe(64)
	defer unsubscribe()

	// Seed initial snapshot so status is useful immediately.
	s.observe(live.Update{Kind: rtvi.KindConnection, At: time.Now()})

	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		s.connectLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-connDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.echo.Shutdown(shutdownCtx)
		case u, ok := <-updates:
			if ok {
				s.observe(u)
			}
		case err := <-errCh:
			return fmt.Errorf("monitor http server: %w", err)
		}
	}
}

func (s *Service) connectLoop(ctx context.Context) {
	for {
		src := s.dial()
		s.mu.Lock()
		s.connects++
		s.mu.Unlock()
		s.metrics.connects.Inc()

		err := s.hub.Run(ctx, src)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.mu.Lock()
			s.lastError = err.Error()
			s.mu.Unlock()
			slog.Warn("connection ended", "source", src.Name(), "err", err)
		}
		if !s.cfg.Reconnect {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
		s.hub.Reset()
	}
}

// currentSnapshot reads the hub into a Snapshot.
func (s *Service) currentSnapshot(at time.Time) Snapshot {
	st := s.hub.Status()
	tel := s.hub.Session().Snapshot()
	return Snapshot{
		At:               at,
		SessionID:        st.SessionID,
		State:            st.State,
		Agent:            st.Agent,
		TTFB:             tel.TTFB,
		AverageMs:        tel.TTFB.Average(),
		Processing:       tel.Processing,
		Usage:            tel.Usage,
		Cumulative:       tel.Cumulative,
		TTFBBatches:      tel.TTFBBatches,
		CharacterBatches: tel.CharacterBatches,
		Messages:         st.Messages,
	}
}

// observe turns a hub update into a monitor event.
func (s *Service) observe(u live.Update) {
	if u.Kind == rtvi.KindAudioLevel {
		return
	}
	now := time.Now()
	snap := s.currentSnapshot(now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot
	s.hasSnapshot = true
	s.snapshot = snap

	delta := diffSnapshots(prev, snap)
	switch {
	case !prevExists:
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, Snapshot: snap}
		publish = true
	case prev.State != snap.State || prev.SessionID != snap.SessionID:
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "connection", Timestamp: now, Snapshot: snap, Delta: delta}
		publish = true
	case !delta.isZero():
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "telemetry_delta", Timestamp: now, Snapshot: snap, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	s.metrics.record(snap, delta)
	if snap.State == rtvi.StateConnected || snap.State == rtvi.StateReady {
		s.metrics.connected.Set(1)
	} else {
		s.metrics.connected.Set(0)
	}

	if publish {
		s.publishEvent(ev)
	}
}

// diffSnapshots compares two snapshots. A new session starts from zero.
func diffSnapshots(prev, curr Snapshot) Delta {
	if prev.SessionID != curr.SessionID {
		prev = Snapshot{}
	}
	return Delta{
		TTFBBatches:      curr.TTFBBatches - prev.TTFBBatches,
		CharacterBatches: curr.CharacterBatches - prev.CharacterBatches,
		Messages:         curr.Messages - prev.Messages,
		PromptTokens:     curr.Cumulative.Prompt - prev.Cumulative.Prompt,
		CompletionTokens: curr.Cumulative.Completion - prev.Cumulative.Completion,
		Tokens:           curr.Cumulative.Total - prev.Cumulative.Total,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	conn := s.hub.Status()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		Addr:            s.cfg.Addr,
		Connects:        s.connects,
		Connection:      conn,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok\n")
}

func (s *Service) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Session().History())
}

func (s *Service) handleTranscript(c echo.Context) error {
	conv := s.hub.Conversation()
	lines := conv.Rendered()
	out := struct {
		Lines   []TranscriptLine `json:"lines"`
		Interim string           `json:"interim,omitempty"`
	}{
		Lines:   make([]TranscriptLine, 0, len(lines)),
		Interim: conv.Interim(),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, TranscriptLine{
			ID:        l.ID,
			Role:      l.Role,
			Text:      l.Text,
			CreatedAt: l.CreatedAt,
			Final:     l.Final,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Service) handleEvents(c echo.Context) error {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	return c.JSON(http.StatusOK, events)
}

func (s *Service) handleStream(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.currentSnapshot(time.Now()),
	}
	writeSSE(w, current)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			writeSSE(w, ev)
			w.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	s.metrics.sseClients.Set(float64(len(s.subs)))
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	s.metrics.sseClients.Set(float64(len(s.subs)))
}
