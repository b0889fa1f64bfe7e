// Package live owns the state of the current connection and fans out
// change notifications to the views.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/voxdeck/internal/conversation"
	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/telemetry"
	"github.com/theirongolddev/voxdeck/internal/transport"
)

// Agent states shown by the visualizer.
const (
	AgentIdle      = "idle"
	AgentListening = "listening"
	AgentThinking  = "thinking"
	AgentSpeaking  = "speaking"
)

// Update tells subscribers that hub state changed.
type Update struct {
	Kind rtvi.Kind
	At   time.Time
}

// Status is a point-in-time view of the connection.
type Status struct {
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"`
	State      string    `json:"state"`
	Agent      string    `json:"agent"`
	BotReady   bool      `json:"bot_ready"`
	BotVersion string    `json:"bot_version,omitempty"`
	Level      float64   `json:"level"`
	LastError  string    `json:"last_error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Events     int64     `json:"events"`
	Messages   int       `json:"messages"`
	Running    bool      `json:"running"`
}

// Archiver persists finished sessions.
type Archiver interface {
	SaveSession(ctx context.Context, s model.SessionSummary) error
}

// Hub is the single writer for one connection's telemetry and conversation.
type Hub struct {
	archiver Archiver
	convOpts []conversation.Option
	now      func() time.Time

	mu      sync.RWMutex
	session *telemetry.Session
	conv    *conversation.Store
	status  Status

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// Option configures a Hub.
type Option func(*Hub)

// WithArchiver saves each session summary when Run returns.
func WithArchiver(a Archiver) Option {
	return func(h *Hub) { h.archiver = a }
}

// WithConversationOptions passes options to each new conversation store.
func WithConversationOptions(opts ...conversation.Option) Option {
	return func(h *Hub) { h.convOpts = opts }
}

// WithClock overrides the hub's time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// New returns a hub with fresh, idle state.
func New(opts ...Option) *Hub {
	h := &Hub{
		now:  time.Now,
		subs: make(map[int]chan Update),
	}
	for _, o := range opts {
		o(h)
	}
	h.Reset()
	return h
}

// Reset discards the current state and starts a new session.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.session = telemetry.New(telemetry.WithClock(h.now))
	h.conv = conversation.New(h.convOpts...)
	h.status = Status{
		SessionID: uuid.NewString(),
		State:     rtvi.StateDisconnected,
		Agent:     AgentIdle,
		StartedAt: h.now(),
	}
	h.mu.Unlock()
	h.publish(Update{Kind: rtvi.KindConnection, At: h.now()})
}

// Session returns the current telemetry session.
func (h *Hub) Session() *telemetry.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// Conversation returns the current conversation store.
func (h *Hub) Conversation() *conversation.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conv
}

// Status returns a copy of the connection status.
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := h.status
	st.Messages = h.conv.Len()
	return st
}

// Subscribe returns a channel of updates and a func to stop receiving them.
// Slow subscribers miss updates rather than block the hub.
func (h *Hub) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	h.subMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			delete(h.subs, id)
			h.subMu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) publish(u Update) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Run drives src until it returns, applying every event. The session is
// archived and disposed afterwards; call Reset before running again.
func (h *Hub) Run(ctx context.Context, src transport.Source) error {
	if h.Session().Disposed() {
		h.Reset()
	}

	h.mu.Lock()
	h.status.Source = src.Name()
	h.status.Running = true
	h.status.LastError = ""
	h.mu.Unlock()
	slog.Info("session started", "source", src.Name(), "session", h.Status().SessionID)

	events := make(chan rtvi.Event, 256)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, events) }()

	var runErr error
loop:
	for {
		select {
		case ev := <-events:
			h.Apply(ev)
		case runErr = <-errc:
			break loop
		}
	}
	for drained := false; !drained; {
		select {
		case ev := <-events:
			h.Apply(ev)
		default:
			drained = true
		}
	}

	h.finish(context.WithoutCancel(ctx), runErr)
	return runErr
}

// Apply folds one event into the hub state. Only the goroutine running Run
// (or a test) may call it.
func (h *Hub) Apply(ev rtvi.Event) {
	h.mu.Lock()
	sess, conv := h.session, h.conv
	st := &h.status
	st.Events++

	switch ev.Kind {
	case rtvi.KindConnection:
		st.State = ev.State
		if ev.State == rtvi.StateDisconnected || ev.State == rtvi.StateFailed {
			st.Agent = AgentIdle
			st.Level = 0
		}
	case rtvi.KindAudioLevel:
		st.Level = ev.Level
	case rtvi.KindBotReady:
		st.BotReady = true
		st.BotVersion = ev.BotVersion
		st.State = rtvi.StateReady
	case rtvi.KindUserStartedSpeaking:
		st.Agent = AgentListening
	case rtvi.KindUserStoppedSpeaking, rtvi.KindBotLLMStarted:
		st.Agent = AgentThinking
	case rtvi.KindBotStartedSpeaking:
		st.Agent = AgentSpeaking
	case rtvi.KindBotStoppedSpeaking:
		st.Agent = AgentIdle
	case rtvi.KindError:
		st.LastError = ev.Error
		if ev.Fatal {
			slog.Error("backend error", "err", ev.Error, "fatal", true)
		} else {
			slog.Warn("backend error", "err", ev.Error)
		}
	}
	h.mu.Unlock()

	if ev.Kind == rtvi.KindMetrics && ev.Metrics != nil {
		sess.Apply(*ev.Metrics)
	}
	conv.Apply(ev)

	h.publish(Update{Kind: ev.Kind, At: ev.At})
}

func (h *Hub) finish(ctx context.Context, runErr error) {
	h.mu.Lock()
	sess, conv := h.session, h.conv
	h.status.Running = false
	if runErr != nil {
		h.status.LastError = runErr.Error()
		h.status.State = rtvi.StateFailed
	} else if h.status.State != rtvi.StateFailed {
		h.status.State = rtvi.StateDisconnected
	}
	h.status.Agent = AgentIdle
	h.status.Level = 0
	id, src := h.status.SessionID, h.status.Source
	h.mu.Unlock()

	conv.Close()
	sum := sess.Dispose()
	sum.SessionID = id
	sum.Source = src
	sum.Messages = conv.Messages()

	slog.Info("session ended", "session", id, "ttfb_batches", sum.TTFBBatches,
		"messages", len(sum.Messages), "tokens", sum.Cumulative.Total)

	if h.archiver != nil && (sum.TTFBBatches > 0 || sum.CharacterBatches > 0 || len(sum.Messages) > 0) {
		if err := h.archiver.SaveSession(ctx, sum); err != nil {
			slog.Warn("archiving session", "session", id, "err", err)
		}
	}
	h.publish(Update{Kind: rtvi.KindConnection, At: h.now()})
}
