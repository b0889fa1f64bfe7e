package model

import "strings"

// Stage is a voice pipeline stage.
type Stage string

const (
	StageSTT Stage = "stt"
	StageLLM Stage = "llm"
	StageTTS Stage = "tts"
)

// Stages lists the pipeline stages in classification precedence.
var Stages = []Stage{StageSTT, StageLLM, StageTTS}

// ClassifyProcessor maps a processor identifier to its stage by
// case-insensitive substring match, first match in Stages order wins.
func ClassifyProcessor(processor string) (Stage, bool) {
	p := strings.ToLower(processor)
	for _, st := range Stages {
		if strings.Contains(p, string(st)) {
			return st, true
		}
	}
	return "", false
}

// MetricSample is one measurement reported by a pipeline processor.
// Value is in seconds for ttfb/processing and a count for characters.
type MetricSample struct {
	Processor string  `json:"processor"`
	Model     string  `json:"model,omitempty"`
	Value     float64 `json:"value"`
}

// MetricsEvent is one metrics batch from the backend.
type MetricsEvent struct {
	Processing []MetricSample `json:"processing,omitempty"`
	TTFB       []MetricSample `json:"ttfb,omitempty"`
	Characters []MetricSample `json:"characters,omitempty"`
}

// TTFBSnapshot holds the latest time-to-first-byte per stage, in milliseconds.
type TTFBSnapshot struct {
	STTMs float64 `json:"stt_ms"`
	LLMMs float64 `json:"llm_ms"`
	TTSMs float64 `json:"tts_ms"`
}

// Get returns the value for a stage.
func (s TTFBSnapshot) Get(st Stage) float64 {
	switch st {
	case StageSTT:
		return s.STTMs
	case StageLLM:
		return s.LLMMs
	case StageTTS:
		return s.TTSMs
	}
	return 0
}

// Set stores v for a stage. Unknown stages are ignored.
func (s *TTFBSnapshot) Set(st Stage, v float64) {
	switch st {
	case StageSTT:
		s.STTMs = v
	case StageLLM:
		s.LLMMs = v
	case StageTTS:
		s.TTSMs = v
	}
}

// Average is the mean across all three stages, zeros included.
func (s TTFBSnapshot) Average() float64 {
	return (s.STTMs + s.LLMMs + s.TTSMs) / 3
}

// TTFBPoint is one charted history entry.
type TTFBPoint struct {
	Timestamp string  `json:"timestamp"`
	STTMs     float64 `json:"stt_ms"`
	LLMMs     float64 `json:"llm_ms"`
	TTSMs     float64 `json:"tts_ms"`
}

// Snapshot returns the point's values without its timestamp.
func (p TTFBPoint) Snapshot() TTFBSnapshot {
	return TTFBSnapshot{STTMs: p.STTMs, LLMMs: p.LLMMs, TTSMs: p.TTSMs}
}

// TokenUsage is a token count estimated from character counts.
type TokenUsage struct {
	Prompt     int64 `json:"prompt_tokens"`
	Completion int64 `json:"completion_tokens"`
	Total      int64 `json:"total_tokens"`
}

// Add returns the field-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:     u.Prompt + o.Prompt,
		Completion: u.Completion + o.Completion,
		Total:      u.Total + o.Total,
	}
}
