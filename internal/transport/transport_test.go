package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

const (
	metricsFrame = `{"label":"rtvi-ai","type":"metrics","data":{"ttfb":[{"processor":"openai-stt","value":0.25}]}}`
	userFrame    = `{"label":"rtvi-ai","type":"user-transcription","data":{"text":"hi","final":true}}`
)

func collect(t *testing.T, src Source) ([]rtvi.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan rtvi.Event, 64)
	err := src.Run(ctx, events)
	close(events)

	var out []rtvi.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, err
}

func kinds(evs []rtvi.Event) []rtvi.Kind {
	out := make([]rtvi.Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func TestReplay(t *testing.T) {
	capture := strings.Join([]string{
		"# captured 2025-06-01",
		metricsFrame,
		"",
		`{"label":"rtvi-ai","type":"metrics","data":`,
		`{"label":"other","type":"metrics"}`,
		userFrame,
	}, "\n")

	r := &Replay{Reader: strings.NewReader(capture)}
	evs, err := collect(t, r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := kinds(evs)
	want := []rtvi.Kind{rtvi.KindConnection, rtvi.KindMetrics, rtvi.KindUserTranscription, rtvi.KindConnection}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if evs[len(evs)-1].State != rtvi.StateDisconnected {
		t.Fatalf("last state = %q, want %q", evs[len(evs)-1].State, rtvi.StateDisconnected)
	}
	if r.Skipped() != 1 {
		t.Fatalf("Skipped = %d, want 1", r.Skipped())
	}
}

func TestReplayMissingFile(t *testing.T) {
	r := &Replay{Path: t.TempDir() + "/missing.jsonl"}
	if _, err := collect(t, r); err == nil {
		t.Fatal("expected error for missing capture")
	}
}

func TestReplayCancelled(t *testing.T) {
	r := &Replay{Reader: strings.NewReader(metricsFrame + "\n" + metricsFrame), Interval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan rtvi.Event, 8)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, events) }()

	// connected, first metrics
	<-events
	<-events
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExchangeOffer(t *testing.T) {
	var gotAuth string
	var gotReq OfferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OfferResponse{SDP: "v=0 answer", Type: "answer", PCID: "pc-1"})
	}))
	defer srv.Close()

	ans, err := ExchangeOffer(context.Background(), srv.Client(), srv.URL, "secret",
		OfferRequest{SDP: "v=0 offer", Type: "offer"})
	if err != nil {
		t.Fatalf("ExchangeOffer: %v", err)
	}
	if ans.PCID != "pc-1" || ans.SDP != "v=0 answer" {
		t.Fatalf("answer = %+v", ans)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotReq.Type != "offer" || gotReq.SDP != "v=0 offer" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestExchangeOfferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := ExchangeOffer(context.Background(), srv.Client(), srv.URL, "", OfferRequest{SDP: "x", Type: "offer"})
	if !errors.Is(err, ErrOfferRejected) {
		t.Fatalf("err = %v, want ErrOfferRejected", err)
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Fatalf("err = %v, want body in message", err)
	}
}

func TestNegotiateCancelledIsDisconnect(t *testing.T) {
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan rtvi.Event, 8)
	em := emitter{ctx: ctx, done: make(chan struct{}), events: events, now: time.Now}
	w := &WebRTC{OfferURL: srv.URL}

	go func() {
		<-arrived
		cancel()
	}()
	_, ok, err := w.negotiate(ctx, em, "v=0 offer")
	if ok || err != nil {
		t.Fatalf("negotiate = ok %v, err %v; want false, nil", ok, err)
	}
	close(events)
	for ev := range events {
		if ev.State == rtvi.StateFailed {
			t.Fatalf("emitted %q after cancel", ev.State)
		}
	}
}

func TestNegotiateRecordsPCID(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OfferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen = append(seen, req.PCID)
		_ = json.NewEncoder(w).Encode(OfferResponse{SDP: "v=0 answer", Type: "answer", PCID: "pc-7"})
	}))
	defer srv.Close()

	ctx := context.Background()
	em := emitter{ctx: ctx, done: make(chan struct{}), events: make(chan rtvi.Event, 8), now: time.Now}
	w := &WebRTC{OfferURL: srv.URL}
	for range 2 {
		if _, ok, err := w.negotiate(ctx, em, "v=0 offer"); !ok || err != nil {
			t.Fatalf("negotiate = ok %v, err %v", ok, err)
		}
	}
	if len(seen) != 2 || seen[0] != "" || seen[1] != "pc-7" {
		t.Fatalf("pc_ids = %q, want [\"\" pc-7]", seen)
	}
}

func TestWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotHello := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, hello, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotHello <- string(hello)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(metricsFrame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(userFrame))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	ws := &WebSocket{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	evs, err := collect(t, ws)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	hello := <-gotHello
	if !strings.Contains(hello, `"client-ready"`) {
		t.Fatalf("hello = %s", hello)
	}

	got := kinds(evs)
	want := []rtvi.Kind{rtvi.KindConnection, rtvi.KindConnection, rtvi.KindMetrics, rtvi.KindUserTranscription, rtvi.KindConnection}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWebSocketDialError(t *testing.T) {
	ws := &WebSocket{URL: "ws://127.0.0.1:1/nope"}
	evs, err := collect(t, ws)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if last := evs[len(evs)-1]; last.State != rtvi.StateFailed {
		t.Fatalf("last state = %q, want %q", last.State, rtvi.StateFailed)
	}
}

func TestPayloadLevel(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{payloadFloor, 0},
		{payloadCeiling, 1},
		{500, 1},
		{(payloadFloor + payloadCeiling) / 2, 0.5},
	}
	for _, tt := range tests {
		if got := payloadLevel(tt.n); got != tt.want {
			t.Errorf("payloadLevel(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestLevelMeterRateLimits(t *testing.T) {
	m := levelMeter{smoothing: 0}
	start := time.Unix(1000, 0)

	lvl, ok := m.observe(payloadCeiling, start)
	if !ok || lvl != 1 {
		t.Fatalf("first observe = %v, %v; want 1, true", lvl, ok)
	}
	if _, ok := m.observe(payloadCeiling, start.Add(20*time.Millisecond)); ok {
		t.Fatal("reported inside the interval")
	}
	lvl, ok = m.observe(0, start.Add(60*time.Millisecond))
	if !ok {
		t.Fatal("no report after the interval")
	}
	if lvl != 1 {
		t.Fatalf("level = %v, want peak 1 from the window", lvl)
	}
}
