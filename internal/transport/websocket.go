package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

// WebSocket reads RTVI frames from a websocket endpoint.
type WebSocket struct {
	URL    string
	APIKey string
	Client Client
	Dialer *websocket.Dialer
}

// Name implements Source.
func (s *WebSocket) Name() string { return "websocket" }

// Run implements Source.
func (s *WebSocket) Run(ctx context.Context, events chan<- rtvi.Event) error {
	done := make(chan struct{})
	defer close(done)
	em := emitter{ctx: ctx, done: done, events: events, now: time.Now}
	em.state(rtvi.StateConnecting)

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if s.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.APIKey)
	}
	conn, _, err := dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("dialing %s: %w", s.URL, err)
	}
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	client := s.Client
	if client.Library == "" {
		client = DefaultClient
	}
	hello, err := rtvi.ClientReady(client.Library, client.Version)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		em.state(rtvi.StateFailed)
		return fmt.Errorf("sending client-ready: %w", err)
	}
	em.state(rtvi.StateConnected)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				em.state(rtvi.StateDisconnected)
				return nil
			}
			em.state(rtvi.StateFailed)
			return fmt.Errorf("reading frame: %w", err)
		}
		ev, ok, err := rtvi.Decode(data, time.Now())
		if err != nil {
			slog.Warn("dropping websocket frame", "err", err)
			continue
		}
		if ok {
			em.send(ev)
		}
	}
}
