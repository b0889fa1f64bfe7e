package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

type fakeSource struct {
	events []rtvi.Event
	err    error
	block  bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Run(ctx context.Context, out chan<- rtvi.Event) error {
	for _, ev := range f.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if f.block {
		<-ctx.Done()
	}
	return f.err
}

type memArchive struct {
	mu    sync.Mutex
	saved []model.SessionSummary
}

func (m *memArchive) SaveSession(_ context.Context, s model.SessionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

func metrics(ttfb, chars float64) rtvi.Event {
	return rtvi.Event{Kind: rtvi.KindMetrics, Metrics: &model.MetricsEvent{
		TTFB:       []model.MetricSample{{Processor: "openai-llm", Value: ttfb}},
		Characters: []model.MetricSample{{Processor: "openai-tts", Value: chars}},
	}}
}

func TestRunAppliesAndArchives(t *testing.T) {
	arch := &memArchive{}
	h := New(WithArchiver(arch))

	src := &fakeSource{events: []rtvi.Event{
		rtvi.ConnectionEvent(rtvi.StateConnected, time.Now()),
		{Kind: rtvi.KindBotReady, BotVersion: "1.0"},
		{Kind: rtvi.KindUserTranscription, Text: "hello", Final: true},
		metrics(0.4, 40),
		{Kind: rtvi.KindBotTTSText, Text: "hi there"},
		metrics(0.2, 8),
	}}
	sess := h.Session()

	if err := h.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := sess.Snapshot()
	if snap.TTFBBatches != 2 {
		t.Fatalf("TTFBBatches = %d, want 2", snap.TTFBBatches)
	}
	if snap.Cumulative.Total != 12 {
		t.Fatalf("Cumulative.Total = %d, want 12", snap.Cumulative.Total)
	}

	st := h.Status()
	if st.Running || st.State != rtvi.StateDisconnected || !st.BotReady {
		t.Fatalf("status = %+v", st)
	}
	if st.Messages != 2 {
		t.Fatalf("Messages = %d, want 2", st.Messages)
	}

	if len(arch.saved) != 1 {
		t.Fatalf("archived %d sessions, want 1", len(arch.saved))
	}
	sum := arch.saved[0]
	if sum.SessionID != st.SessionID || sum.Source != "fake" {
		t.Fatalf("summary id/source = %q/%q", sum.SessionID, sum.Source)
	}
	if len(sum.Messages) != 2 || len(sum.History) != 2 {
		t.Fatalf("summary messages/history = %d/%d", len(sum.Messages), len(sum.History))
	}
	if sum.MeanTTFB.LLMMs < 299.9 || sum.MeanTTFB.LLMMs > 300.1 {
		t.Fatalf("MeanTTFB.LLMMs = %v, want 300", sum.MeanTTFB.LLMMs)
	}
}

func TestRunEmptySessionNotArchived(t *testing.T) {
	arch := &memArchive{}
	h := New(WithArchiver(arch))
	if err := h.Run(context.Background(), &fakeSource{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(arch.saved) != 0 {
		t.Fatalf("archived %d sessions, want 0", len(arch.saved))
	}
}

func TestRunSourceError(t *testing.T) {
	boom := errors.New("boom")
	h := New()
	err := h.Run(context.Background(), &fakeSource{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	st := h.Status()
	if st.State != rtvi.StateFailed || st.LastError != "boom" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRunCancel(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, &fakeSource{block: true}) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunResetsDisposedSession(t *testing.T) {
	h := New()
	first := h.Session()
	firstID := h.Status().SessionID
	_ = h.Run(context.Background(), &fakeSource{})
	if !first.Disposed() {
		t.Fatal("first session not disposed")
	}

	_ = h.Run(context.Background(), &fakeSource{events: []rtvi.Event{metrics(0.1, 4)}})
	if h.Session() == first {
		t.Fatal("second run reused disposed session")
	}
	if h.Status().SessionID == firstID {
		t.Fatal("second run reused session id")
	}
}

func TestAgentState(t *testing.T) {
	h := New()
	steps := []struct {
		kind rtvi.Kind
		want string
	}{
		{rtvi.KindUserStartedSpeaking, AgentListening},
		{rtvi.KindUserStoppedSpeaking, AgentThinking},
		{rtvi.KindBotStartedSpeaking, AgentSpeaking},
		{rtvi.KindBotStoppedSpeaking, AgentIdle},
	}
	for _, s := range steps {
		h.Apply(rtvi.Event{Kind: s.kind})
		if got := h.Status().Agent; got != s.want {
			t.Fatalf("after %s agent = %q, want %q", s.kind, got, s.want)
		}
	}
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	h := New()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Apply(rtvi.AudioLevelEvent(0.5, time.Now()))
	}
	if n := len(ch); n != 1 {
		t.Fatalf("buffered = %d, want 1", n)
	}
	if got := h.Status().Level; got != 0.5 {
		t.Fatalf("Level = %v, want 0.5", got)
	}

	cancel()
	cancel()
	h.Apply(rtvi.AudioLevelEvent(0.1, time.Now()))
}
