package rtvi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/theirongolddev/voxdeck/internal/telemetry"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeMetrics(t *testing.T) {
	frame := `{"label":"rtvi-ai","type":"metrics","id":"m1","data":{
		"ttfb":[{"processor":"OpenAISTTService#0","value":0.25}],
		"characters":[{"processor":"OpenAITTSService#0","value":40}]}}`

	ev, ok, err := Decode([]byte(frame), t0)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if ev.Kind != KindMetrics {
		t.Fatalf("Kind = %q, want %q", ev.Kind, KindMetrics)
	}
	if ev.Metrics == nil || len(ev.Metrics.TTFB) != 1 || len(ev.Metrics.Characters) != 1 {
		t.Fatalf("Metrics = %+v", ev.Metrics)
	}
	if ev.Metrics.TTFB[0].Value != 0.25 {
		t.Fatalf("ttfb value = %v, want 0.25", ev.Metrics.TTFB[0].Value)
	}
	if ev.Metrics.Processing != nil {
		t.Fatalf("Processing = %v, want nil", ev.Metrics.Processing)
	}
	if !ev.At.Equal(t0) || ev.ID != "m1" {
		t.Fatalf("At/ID = %v/%q", ev.At, ev.ID)
	}
}

func TestDecodeUserTranscription(t *testing.T) {
	frame := `{"label":"rtvi-ai","type":"user-transcription","data":{"text":"hello there","final":true,"timestamp":"2025-06-01T12:00:00Z","user_id":"u1"}}`
	ev, ok, err := Decode([]byte(frame), t0)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if ev.Text != "hello there" || !ev.Final || ev.UserID != "u1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDecodeError(t *testing.T) {
	frame := `{"label":"rtvi-ai","type":"error","data":{"error":"pipeline crashed","fatal":true}}`
	ev, ok, err := Decode([]byte(frame), t0)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if ev.Error != "pipeline crashed" || !ev.Fatal {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDecodeSkips(t *testing.T) {
	tests := map[string]string{
		"foreign label": `{"label":"other","type":"metrics","data":{}}`,
		"unknown type":  `{"label":"rtvi-ai","type":"server-response","data":{}}`,
		"client type":   `{"label":"rtvi-ai","type":"client-ready"}`,
	}
	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok, err := Decode([]byte(frame), t0)
			if err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			if ok {
				t.Fatal("ok = true, want skip")
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, _, err := Decode([]byte(`{not json`), t0); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, _, err := Decode([]byte(`{"label":"rtvi-ai","type":"metrics","data":[1,2]}`), t0); err == nil {
		t.Fatal("expected error for non-object metrics data")
	}
}

func TestDecodeMetricsSkipsBadSamples(t *testing.T) {
	frame := `{"label":"rtvi-ai","type":"metrics","data":{
		"ttfb":[{"processor":"OpenAISTTService#0","value":0.25},{"processor":"OpenAILLMService#0","value":"n/a"}],
		"characters":"none"}}`

	ev, ok, err := Decode([]byte(frame), t0)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if len(ev.Metrics.TTFB) != 1 || ev.Metrics.TTFB[0].Processor != "OpenAISTTService#0" {
		t.Fatalf("TTFB = %+v, want only the stt sample", ev.Metrics.TTFB)
	}
	if ev.Metrics.Characters != nil {
		t.Fatalf("Characters = %+v, want nil", ev.Metrics.Characters)
	}

	sess := telemetry.New()
	sess.Apply(*ev.Metrics)
	if got := sess.TTFB(); got.STTMs != 250 || got.LLMMs != 0 {
		t.Fatalf("TTFB = %+v, want stt 250 llm 0", got)
	}
	if n := len(sess.History()); n != 1 {
		t.Fatalf("len(History) = %d, want 1", n)
	}
}

func TestDecodeMetricsWithoutData(t *testing.T) {
	ev, ok, err := Decode([]byte(`{"label":"rtvi-ai","type":"metrics"}`), t0)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if m := ev.Metrics; m == nil || m.TTFB != nil || m.Characters != nil || m.Processing != nil {
		t.Fatalf("Metrics = %+v, want empty non-nil", ev.Metrics)
	}
}

func TestClientReady(t *testing.T) {
	b, err := ClientReady("voxdeck", "dev")
	if err != nil {
		t.Fatalf("ClientReady: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Label != Label || env.Type != "client-ready" || env.ID == "" {
		t.Fatalf("envelope = %+v", env)
	}
	var data struct {
		Version string `json:"version"`
		About   struct {
			Library string `json:"library"`
		} `json:"about"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Version != ProtocolVersion || data.About.Library != "voxdeck" {
		t.Fatalf("data = %+v", data)
	}
}

func TestAudioLevelClamped(t *testing.T) {
	if got := AudioLevelEvent(1.7, t0).Level; got != 1 {
		t.Fatalf("Level = %v, want 1", got)
	}
	if got := AudioLevelEvent(-0.2, t0).Level; got != 0 {
		t.Fatalf("Level = %v, want 0", got)
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"label":"rtvi-ai","type":"metrics","data":{"ttfb":[{"processor":"stt","value":0.1}]}}`))
	f.Add([]byte(`{"label":"rtvi-ai","type":"user-transcription","data":{"text":"hi","final":true}}`))
	f.Add([]byte(`{"label":"rtvi-ai","type":"error","data":{"error":"boom","fatal":true}}`))
	f.Add([]byte(`{"label":"other","type":"metrics"}`))
	f.Add([]byte(`{"label":"rtvi-ai","type":"metrics","data":null}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, frame []byte) {
		ev, ok, err := Decode(frame, t0)
		if err != nil && ok {
			t.Fatalf("Decode(%q) returned ok with error %v", frame, err)
		}
		if ok && ev.Kind == KindMetrics && ev.Metrics == nil {
			t.Fatalf("Decode(%q) metrics event without metrics", frame)
		}
	})
}
