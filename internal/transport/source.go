// Package transport connects to a voice-agent backend and delivers its
// RTVI messages as events.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

// ErrOfferRejected is returned when the backend refuses an SDP offer.
var ErrOfferRejected = errors.New("offer rejected")

// Source produces events until ctx is cancelled or the connection ends.
// Run never closes events; the caller owns the channel.
type Source interface {
	Run(ctx context.Context, events chan<- rtvi.Event) error
	Name() string
}

// Client identifies voxdeck to the backend in client-ready.
type Client struct {
	Library string
	Version string
}

// DefaultClient is used when a source has no Client set.
var DefaultClient = Client{Library: "voxdeck", Version: "dev"}

// emitter forwards events to the caller until ctx or done ends.
type emitter struct {
	ctx    context.Context
	done   <-chan struct{}
	events chan<- rtvi.Event
	now    func() time.Time
}

func (e emitter) send(ev rtvi.Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	case <-e.done:
	}
}

func (e emitter) state(s string) {
	e.send(rtvi.ConnectionEvent(s, e.now()))
}
