package telemetry

import (
	"testing"
	"time"

	"github.com/theirongolddev/voxdeck/internal/model"
)

func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func TestApplyTTFBBatch_SingleStage(t *testing.T) {
	s := New(WithClock(fixedClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))))
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "openai-stt", Value: 0.25}})

	got := s.TTFB()
	want := model.TTFBSnapshot{STTMs: 250}
	if got != want {
		t.Fatalf("TTFB = %+v, want %+v", got, want)
	}

	hist := s.History()
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
	if hist[0].Snapshot() != want {
		t.Fatalf("history[0] = %+v, want %+v", hist[0], want)
	}
	if hist[0].Timestamp != "2025-06-01T10:00:02.000Z" {
		t.Fatalf("history[0].Timestamp = %q", hist[0].Timestamp)
	}
}

func TestApplyTTFBBatch_ClassificationPrecedence(t *testing.T) {
	s := New()
	s.ApplyTTFBBatch([]model.MetricSample{
		{Processor: "OpenAILLMService#0", Value: 0.5},
		{Processor: "SimplismartSTTService#0", Value: 0.1},
		{Processor: "OpenAITTSService#0", Value: 0.3},
		{Processor: "stt-llm-hybrid", Value: 0.9}, // matches stt first
		{Processor: "vad", Value: 7},
	})

	got := s.TTFB()
	want := model.TTFBSnapshot{STTMs: 900, LLMMs: 500, TTSMs: 300}
	if got != want {
		t.Fatalf("TTFB = %+v, want %+v", got, want)
	}
}

func TestApplyTTFBBatch_ReplacesNotBlends(t *testing.T) {
	s := New()
	s.ApplyTTFBBatch([]model.MetricSample{
		{Processor: "stt", Value: 0.1},
		{Processor: "llm", Value: 0.2},
	})
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "tts", Value: 0.3}})

	got := s.TTFB()
	want := model.TTFBSnapshot{TTSMs: 300}
	if got != want {
		t.Fatalf("TTFB = %+v, want %+v (batch is a complete reading)", got, want)
	}
}

func TestHistoryBoundedFIFO(t *testing.T) {
	s := New()
	for i := 1; i <= HistoryLimit+1; i++ {
		s.ApplyTTFBBatch([]model.MetricSample{{Processor: "llm", Value: float64(i) / 1000}})
	}

	hist := s.History()
	if len(hist) != HistoryLimit {
		t.Fatalf("history len = %d, want %d", len(hist), HistoryLimit)
	}
	if hist[0].LLMMs != 2 {
		t.Fatalf("oldest LLMMs = %v, want 2 (first point evicted)", hist[0].LLMMs)
	}
	if hist[len(hist)-1].LLMMs != float64(HistoryLimit+1) {
		t.Fatalf("newest LLMMs = %v, want %d", hist[len(hist)-1].LLMMs, HistoryLimit+1)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].LLMMs <= hist[i-1].LLMMs {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestApplyTTFBBatch_EmptyBatchStillRecords(t *testing.T) {
	s := New()
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "stt", Value: 1}})
	s.ApplyTTFBBatch(nil)

	if got := s.TTFB(); got != (model.TTFBSnapshot{}) {
		t.Fatalf("TTFB = %+v, want zero", got)
	}
	if n := len(s.History()); n != 2 {
		t.Fatalf("history len = %d, want 2", n)
	}
}

func TestApplyCharacterBatch(t *testing.T) {
	s := New()
	batch := []model.MetricSample{{Processor: "x", Value: 40}}

	s.ApplyCharacterBatch(batch)
	want := model.TokenUsage{Prompt: 6, Completion: 4, Total: 10}
	if got := s.Usage(); got != want {
		t.Fatalf("Usage = %+v, want %+v", got, want)
	}
	if got := s.Cumulative(); got != want {
		t.Fatalf("Cumulative = %+v, want %+v", got, want)
	}

	s.ApplyCharacterBatch(batch)
	if got := s.Usage(); got != want {
		t.Fatalf("Usage after 2nd = %+v, want unchanged %+v", got, want)
	}
	wantCum := model.TokenUsage{Prompt: 12, Completion: 8, Total: 20}
	if got := s.Cumulative(); got != wantCum {
		t.Fatalf("Cumulative after 2nd = %+v, want %+v", got, wantCum)
	}
}

func TestEstimateUsage_Rounding(t *testing.T) {
	cases := []struct {
		chars float64
		want  model.TokenUsage
	}{
		{0, model.TokenUsage{}},
		{2, model.TokenUsage{Prompt: 1, Completion: 0, Total: 1}},  // 0.5 -> 1; 0.6 -> 1; 0.4 -> 0
		{10, model.TokenUsage{Prompt: 2, Completion: 1, Total: 3}}, // 2.5 -> 3; 1.8 -> 2; 1.2 -> 1
		{25, model.TokenUsage{Prompt: 4, Completion: 2, Total: 6}}, // 6.25 -> 6; 3.6 -> 4; 2.4 -> 2
	}
	for _, c := range cases {
		got := EstimateUsage([]model.MetricSample{{Processor: "tts", Value: c.chars}})
		if got != c.want {
			t.Errorf("EstimateUsage(%v) = %+v, want %+v", c.chars, got, c.want)
		}
	}
}

func TestCumulativeMonotonic(t *testing.T) {
	s := New()
	batches := [][]model.MetricSample{
		{{Processor: "a", Value: 12}},
		nil,
		{},
		{{Processor: "a", Value: 3}, {Processor: "b", Value: 100}},
		{{Processor: "a", Value: 1}},
	}
	prev := s.Cumulative()
	for i, b := range batches {
		s.ApplyCharacterBatch(b)
		cur := s.Cumulative()
		if cur.Prompt < prev.Prompt || cur.Completion < prev.Completion || cur.Total < prev.Total {
			t.Fatalf("batch %d: cumulative decreased from %+v to %+v", i, prev, cur)
		}
		prev = cur
	}
}

func TestApply_DispatchesBothBatches(t *testing.T) {
	s := New()
	s.Apply(model.MetricsEvent{
		TTFB:       []model.MetricSample{{Processor: "tts", Value: 0.2}},
		Characters: []model.MetricSample{{Processor: "tts", Value: 8}},
		Processing: []model.MetricSample{{Processor: "llm", Value: 1.5}},
	})

	snap := s.Snapshot()
	if snap.TTFB.TTSMs != 200 {
		t.Fatalf("TTFB.TTSMs = %v, want 200", snap.TTFB.TTSMs)
	}
	if snap.Usage.Total != 2 {
		t.Fatalf("Usage.Total = %d, want 2", snap.Usage.Total)
	}
	if snap.Processing.LLMMs != 1500 {
		t.Fatalf("Processing.LLMMs = %v, want 1500", snap.Processing.LLMMs)
	}
	if snap.TTFBBatches != 1 || snap.CharacterBatches != 1 {
		t.Fatalf("batches = %d/%d, want 1/1", snap.TTFBBatches, snap.CharacterBatches)
	}
	if len(snap.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(snap.History))
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := New()
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "stt", Value: 0.1}})
	h := s.History()
	h[0].STTMs = 999
	if s.History()[0].STTMs != 100 {
		t.Fatal("History returned an alias of internal state")
	}
}

func TestDispose(t *testing.T) {
	s := New()
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "stt", Value: 0.1}})
	s.ApplyTTFBBatch([]model.MetricSample{{Processor: "stt", Value: 0.3}})
	s.ApplyCharacterBatch([]model.MetricSample{{Processor: "x", Value: 40}})

	sum := s.Dispose()
	if sum.TTFBBatches != 2 || sum.CharacterBatches != 1 {
		t.Fatalf("batches = %d/%d, want 2/1", sum.TTFBBatches, sum.CharacterBatches)
	}
	if sum.MeanTTFB.STTMs != 200 {
		t.Fatalf("MeanTTFB.STTMs = %v, want 200", sum.MeanTTFB.STTMs)
	}
	if sum.Cumulative.Total != 10 {
		t.Fatalf("Cumulative.Total = %d, want 10", sum.Cumulative.Total)
	}
	if len(sum.History) != 2 {
		t.Fatalf("summary history len = %d, want 2", len(sum.History))
	}

	s.ApplyCharacterBatch([]model.MetricSample{{Processor: "x", Value: 40}})
	if !s.Disposed() {
		t.Fatal("Disposed = false after Dispose")
	}
	if got := s.Cumulative().Total; got != 10 {
		t.Fatalf("Cumulative.Total after dispose = %d, want 10", got)
	}
}
