package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

var errPeerFailed = errors.New("peer connection failed")

// DefaultSTUN is used when no ICE servers are configured.
const DefaultSTUN = "stun:stun.l.google.com:19302"

// WebRTC connects to a SmallWebRTC backend by posting an SDP offer.
type WebRTC struct {
	OfferURL   string
	APIKey     string
	ICEServers []string
	HTTPClient *http.Client
	Client     Client

	mu   sync.Mutex
	pcID string // kept across reconnects so the backend can reuse the peer
}

// Name implements Source.
func (w *WebRTC) Name() string { return "webrtc" }

// OfferRequest is the body posted to the offer endpoint.
type OfferRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id,omitempty"`
}

// OfferResponse is the backend's answer.
type OfferResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id"`
}

// Run implements Source.
func (w *WebRTC) Run(ctx context.Context, events chan<- rtvi.Event) error {
	done := make(chan struct{})
	defer close(done)
	em := emitter{ctx: ctx, done: done, events: events, now: time.Now}
	em.state(rtvi.StateConnecting)

	ice := w.ICEServers
	if len(ice) == 0 {
		ice = []string{DefaultSTUN}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: ice}},
	})
	if err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("creating peer connection: %w", err)
	}
	defer pc.Close()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("adding audio transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("creating data channel: %w", err)
	}

	client := w.Client
	if client.Library == "" {
		client = DefaultClient
	}
	dc.OnOpen(func() {
		slog.Debug("data channel open", "label", dc.Label())
		em.state(rtvi.StateConnected)
		msg, err := rtvi.ClientReady(client.Library, client.Version)
		if err != nil {
			slog.Warn("building client-ready", "err", err)
			return
		}
		if err := dc.SendText(string(msg)); err != nil {
			slog.Warn("sending client-ready", "err", err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev, ok, err := rtvi.Decode(msg.Data, time.Now())
		if err != nil {
			slog.Warn("dropping data channel frame", "err", err)
			return
		}
		if ok {
			em.send(ev)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Debug("remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go readLevels(track, em)
	})

	ended := make(chan error, 1)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		slog.Info("peer connection state", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed:
			select {
			case ended <- errPeerFailed:
			default:
			}
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			select {
			case ended <- nil:
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		em.state(rtvi.StateDisconnected)
		return nil
	}

	answer, ok, err := w.negotiate(ctx, em, pc.LocalDescription().SDP)
	if !ok {
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("setting remote description: %w", err)
	}

	select {
	case <-ctx.Done():
		em.state(rtvi.StateDisconnected)
		return nil
	case err := <-ended:
		if err != nil {
			em.state(rtvi.StateFailed)
			return err
		}
		em.state(rtvi.StateDisconnected)
		return nil
	}
}

// negotiate posts the local offer and records the pc_id of the answer.
// ok is false when Run should return err; a cancelled ctx yields a nil err.
func (w *WebRTC) negotiate(ctx context.Context, em emitter, sdp string) (OfferResponse, bool, error) {
	w.mu.Lock()
	pcID := w.pcID
	w.mu.Unlock()

	answer, err := ExchangeOffer(ctx, w.httpClient(), w.OfferURL, w.APIKey, OfferRequest{
		SDP:  sdp,
		Type: "offer",
		PCID: pcID,
	})
	if err != nil {
		if ctx.Err() != nil {
			em.state(rtvi.StateDisconnected)
			return OfferResponse{}, false, nil
		}
		em.state(rtvi.StateFailed)
		return OfferResponse{}, false, err
	}

	w.mu.Lock()
	w.pcID = answer.PCID
	w.mu.Unlock()
	return answer, true, nil
}

func (w *WebRTC) httpClient() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// ExchangeOffer posts an offer and decodes the answer.
func ExchangeOffer(ctx context.Context, hc *http.Client, url, apiKey string, offer OfferRequest) (OfferResponse, error) {
	body, err := json.Marshal(offer)
	if err != nil {
		return OfferResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return OfferResponse{}, fmt.Errorf("building offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return OfferResponse{}, fmt.Errorf("posting offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return OfferResponse{}, fmt.Errorf("%w: %s: %s", ErrOfferRejected, resp.Status, bytes.TrimSpace(msg))
	}

	var answer OfferResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return OfferResponse{}, fmt.Errorf("decoding answer: %w", err)
	}
	if answer.SDP == "" {
		return OfferResponse{}, fmt.Errorf("%w: empty answer", ErrOfferRejected)
	}
	return answer, nil
}

// Opus payload sizes in bytes. DTX silence frames sit near the floor,
// full-band speech near the ceiling.
const (
	payloadFloor   = 12
	payloadCeiling = 160
	levelInterval  = 50 * time.Millisecond
)

// payloadLevel maps one RTP payload size to an activity level in [0, 1].
func payloadLevel(n int) float64 {
	if n <= payloadFloor {
		return 0
	}
	if n >= payloadCeiling {
		return 1
	}
	return float64(n-payloadFloor) / float64(payloadCeiling-payloadFloor)
}

// levelMeter smooths packet levels and rate-limits reports.
type levelMeter struct {
	smoothing float64
	level     float64
	peak      float64
	last      time.Time
}

// observe records one packet and returns a level to report, if due.
func (m *levelMeter) observe(n int, now time.Time) (float64, bool) {
	l := payloadLevel(n)
	m.level = m.smoothing*m.level + (1-m.smoothing)*l
	if m.level > m.peak {
		m.peak = m.level
	}
	if now.Sub(m.last) < levelInterval {
		return 0, false
	}
	out := m.peak
	m.peak = 0
	m.last = now
	return out, true
}

func readLevels(track *webrtc.TrackRemote, em emitter) {
	meter := levelMeter{smoothing: 0.6}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			slog.Debug("remote track ended", "err", err)
			em.send(rtvi.AudioLevelEvent(0, time.Now()))
			return
		}
		now := time.Now()
		if lvl, ok := meter.observe(len(pkt.Payload), now); ok {
			em.send(rtvi.AudioLevelEvent(lvl, now))
		}
	}
}
