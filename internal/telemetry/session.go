// Package telemetry aggregates per-connection latency and token usage metrics.
package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/theirongolddev/voxdeck/internal/model"
)

// HistoryLimit is the number of TTFB points kept for charting.
const HistoryLimit = 50

// charsPerToken is the rough English characters-per-token ratio.
const charsPerToken = 4

// Prompt/completion split applied to the estimated token count.
const (
	promptShare     = 0.6
	completionShare = 0.4
)

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	TTFB       model.TTFBSnapshot `json:"ttfb"`
	Processing model.TTFBSnapshot `json:"processing"`
	Usage      model.TokenUsage   `json:"usage"`
	Cumulative model.TokenUsage   `json:"cumulative"`
	History    []model.TTFBPoint  `json:"history"`

	TTFBBatches      int `json:"ttfb_batches"`
	CharacterBatches int `json:"character_batches"`
}

// Session holds the telemetry state for one connection.
//
// Apply* calls are expected from a single writer; the lock only makes
// reads from other goroutines safe.
type Session struct {
	now func() time.Time

	mu         sync.RWMutex
	disposed   bool
	startedAt  time.Time
	ttfb       model.TTFBSnapshot
	processing model.TTFBSnapshot
	usage      model.TokenUsage
	cumulative model.TokenUsage
	history    []model.TTFBPoint

	ttfbBatches int
	charBatches int
	ttfbSum     model.TTFBSnapshot
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns an empty session with all values at zero.
func New(opts ...Option) *Session {
	s := &Session{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.startedAt = s.now()
	s.history = make([]model.TTFBPoint, 0, HistoryLimit)
	return s
}

// Apply routes each batch present in ev to its handler.
func (s *Session) Apply(ev model.MetricsEvent) {
	if ev.Processing != nil {
		s.ApplyProcessingBatch(ev.Processing)
	}
	if ev.TTFB != nil {
		s.ApplyTTFBBatch(ev.TTFB)
	}
	if ev.Characters != nil {
		s.ApplyCharacterBatch(ev.Characters)
	}
}

// classify builds a snapshot from a batch. Stages absent from the batch stay 0;
// when a stage appears twice the later sample wins.
func classify(samples []model.MetricSample) model.TTFBSnapshot {
	var snap model.TTFBSnapshot
	for _, m := range samples {
		st, ok := model.ClassifyProcessor(m.Processor)
		if !ok {
			continue
		}
		snap.Set(st, m.Value*1000)
	}
	return snap
}

// ApplyTTFBBatch replaces the current TTFB snapshot with the batch reading
// and appends it to the bounded history.
func (s *Session) ApplyTTFBBatch(samples []model.MetricSample) {
	snap := classify(samples)
	point := model.TTFBPoint{
		Timestamp: s.now().UTC().Format(timestampLayout),
		STTMs:     snap.STTMs,
		LLMMs:     snap.LLMMs,
		TTSMs:     snap.TTSMs,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	s.ttfb = snap
	s.ttfbBatches++
	s.ttfbSum.STTMs += snap.STTMs
	s.ttfbSum.LLMMs += snap.LLMMs
	s.ttfbSum.TTSMs += snap.TTSMs

	s.history = append(s.history, point)
	if over := len(s.history) - HistoryLimit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// ApplyProcessingBatch records the latest per-stage processing time.
// It does not touch history or usage.
func (s *Session) ApplyProcessingBatch(samples []model.MetricSample) {
	snap := classify(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.processing = snap
}

// EstimateUsage converts a character batch into an estimated token usage.
func EstimateUsage(samples []model.MetricSample) model.TokenUsage {
	var chars float64
	for _, m := range samples {
		chars += m.Value
	}
	est := jsRound(chars / charsPerToken)
	return model.TokenUsage{
		Prompt:     jsRound(float64(est) * promptShare),
		Completion: jsRound(float64(est) * completionShare),
		Total:      est,
	}
}

// ApplyCharacterBatch replaces the current usage with the batch estimate and
// adds it to the cumulative totals.
func (s *Session) ApplyCharacterBatch(samples []model.MetricSample) {
	u := EstimateUsage(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.usage = u
	s.cumulative = s.cumulative.Add(u)
	s.charBatches++
}

// jsRound rounds half toward positive infinity, like Math.round.
func jsRound(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Floor(v + 0.5))
}

// TTFB returns the latest TTFB snapshot.
func (s *Session) TTFB() model.TTFBSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttfb
}

// Usage returns the usage estimated from the latest character batch.
func (s *Session) Usage() model.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Cumulative returns the running usage total for the session.
func (s *Session) Cumulative() model.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cumulative
}

// History returns a copy of the TTFB history, oldest first.
func (s *Session) History() []model.TTFBPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TTFBPoint, len(s.history))
	copy(out, s.history)
	return out
}

// Snapshot returns all aggregates taken under one lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := make([]model.TTFBPoint, len(s.history))
	copy(hist, s.history)
	return Snapshot{
		TTFB:             s.ttfb,
		Processing:       s.processing,
		Usage:            s.usage,
		Cumulative:       s.cumulative,
		History:          hist,
		TTFBBatches:      s.ttfbBatches,
		CharacterBatches: s.charBatches,
	}
}

// Dispose ends the session and returns its final summary. Later Apply calls
// are ignored.
func (s *Session) Dispose() model.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := model.SessionSummary{
		StartedAt:        s.startedAt,
		EndedAt:          s.now(),
		TTFBBatches:      s.ttfbBatches,
		CharacterBatches: s.charBatches,
		LastTTFB:         s.ttfb,
		Cumulative:       s.cumulative,
		History:          append([]model.TTFBPoint(nil), s.history...),
	}
	if s.ttfbBatches > 0 {
		n := float64(s.ttfbBatches)
		sum.MeanTTFB = model.TTFBSnapshot{
			STTMs: s.ttfbSum.STTMs / n,
			LLMMs: s.ttfbSum.LLMMs / n,
			TTSMs: s.ttfbSum.TTSMs / n,
		}
	}

	s.disposed = true
	s.history = nil
	return sum
}

// Disposed reports whether Dispose has been called.
func (s *Session) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}
