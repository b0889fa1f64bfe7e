// Package rtvi decodes the real-time voice inference messages a Pipecat
// backend sends over its data channel.
package rtvi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/voxdeck/internal/model"
)

// Label marks every envelope on the wire.
const Label = "rtvi-ai"

// ProtocolVersion is announced in client-ready.
const ProtocolVersion = "1.0.0"

// Kind identifies an event.
type Kind string

// Server message types.
const (
	KindBotReady            Kind = "bot-ready"
	KindMetrics             Kind = "metrics"
	KindUserTranscription   Kind = "user-transcription"
	KindBotTranscription    Kind = "bot-transcription"
	KindBotTTSText          Kind = "bot-tts-text"
	KindBotLLMText          Kind = "bot-llm-text"
	KindBotLLMStarted       Kind = "bot-llm-started"
	KindBotLLMStopped       Kind = "bot-llm-stopped"
	KindUserStartedSpeaking Kind = "user-started-speaking"
	KindUserStoppedSpeaking Kind = "user-stopped-speaking"
	KindBotStartedSpeaking  Kind = "bot-started-speaking"
	KindBotStoppedSpeaking  Kind = "bot-stopped-speaking"
	KindError               Kind = "error"
)

// Transport-local kinds. These never appear on the wire.
const (
	KindConnection Kind = "connection-state"
	KindAudioLevel Kind = "audio-level"
)

var serverKinds = map[Kind]bool{
	KindBotReady:            true,
	KindMetrics:             true,
	KindUserTranscription:   true,
	KindBotTranscription:    true,
	KindBotTTSText:          true,
	KindBotLLMText:          true,
	KindBotLLMStarted:       true,
	KindBotLLMStopped:       true,
	KindUserStartedSpeaking: true,
	KindUserStoppedSpeaking: true,
	KindBotStartedSpeaking:  true,
	KindBotStoppedSpeaking:  true,
	KindError:               true,
}

// Connection states reported by transports.
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReady        = "ready"
	StateDisconnected = "disconnected"
	StateFailed       = "failed"
)

// Event is one decoded message or transport notification.
type Event struct {
	Kind Kind      `json:"kind"`
	ID   string    `json:"id,omitempty"`
	At   time.Time `json:"at"`

	Metrics *model.MetricsEvent `json:"metrics,omitempty"`

	// Transcription and text fragments.
	Text      string `json:"text,omitempty"`
	Final     bool   `json:"final,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// error
	Error string `json:"error,omitempty"`
	Fatal bool   `json:"fatal,omitempty"`

	// connection-state
	State string `json:"state,omitempty"`

	// audio-level, 0..1
	Level float64 `json:"level,omitempty"`

	// bot-ready
	BotVersion string `json:"bot_version,omitempty"`
}

// Envelope is the wire frame.
type Envelope struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type transcriptionData struct {
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

type errorData struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal"`
}

type botReadyData struct {
	Version string `json:"version"`
}

// Decode parses one frame. ok is false for frames that are valid JSON but
// not meant for us: foreign labels and unknown message types.
func Decode(frame []byte, at time.Time) (ev Event, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, false, fmt.Errorf("decoding rtvi envelope: %w", err)
	}
	if env.Label != Label {
		return Event{}, false, nil
	}
	kind := Kind(env.Type)
	if !serverKinds[kind] {
		return Event{}, false, nil
	}

	ev = Event{Kind: kind, ID: env.ID, At: at}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		if kind == KindMetrics {
			ev.Metrics = &model.MetricsEvent{}
		}
		return ev, true, nil
	}

	switch kind {
	case KindMetrics:
		m, err := decodeMetrics(env.Data)
		if err != nil {
			return Event{}, false, fmt.Errorf("decoding %s data: %w", kind, err)
		}
		ev.Metrics = &m
	case KindUserTranscription, KindBotTranscription, KindBotTTSText, KindBotLLMText:
		var d transcriptionData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Event{}, false, fmt.Errorf("decoding %s data: %w", kind, err)
		}
		ev.Text = d.Text
		ev.Final = d.Final
		ev.Timestamp = d.Timestamp
		ev.UserID = d.UserID
	case KindError:
		var d errorData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Event{}, false, fmt.Errorf("decoding %s data: %w", kind, err)
		}
		ev.Error = d.Error
		ev.Fatal = d.Fatal
	case KindBotReady:
		var d botReadyData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			ev.BotVersion = d.Version
		}
	}
	return ev, true, nil
}

type metricsData struct {
	Processing json.RawMessage `json:"processing"`
	TTFB       json.RawMessage `json:"ttfb"`
	Characters json.RawMessage `json:"characters"`
}

// decodeMetrics decodes each batch sample by sample. Samples or batches of
// the wrong shape are skipped so the rest of the frame still applies.
func decodeMetrics(data json.RawMessage) (model.MetricsEvent, error) {
	var d metricsData
	if err := json.Unmarshal(data, &d); err != nil {
		return model.MetricsEvent{}, err
	}
	return model.MetricsEvent{
		Processing: decodeSamples(d.Processing),
		TTFB:       decodeSamples(d.TTFB),
		Characters: decodeSamples(d.Characters),
	}, nil
}

func decodeSamples(raw json.RawMessage) []model.MetricSample {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]model.MetricSample, 0, len(items))
	for _, item := range items {
		var s model.MetricSample
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ClientReady builds the client-ready frame sent once the channel opens.
func ClientReady(library, version string) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"version": ProtocolVersion,
		"about": map[string]string{
			"library":         library,
			"library_version": version,
		},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Label: Label,
		Type:  "client-ready",
		ID:    uuid.NewString(),
		Data:  data,
	})
}

// ConnectionEvent reports a transport state change.
func ConnectionEvent(state string, at time.Time) Event {
	return Event{Kind: KindConnection, State: state, At: at}
}

// AudioLevelEvent reports remote audio activity.
func AudioLevelEvent(level float64, at time.Time) Event {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	return Event{Kind: KindAudioLevel, Level: level, At: at}
}
