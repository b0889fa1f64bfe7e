package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

// Replay feeds a JSONL capture of RTVI frames, one envelope per line.
// Blank lines and lines starting with '#' are skipped.
type Replay struct {
	Path     string
	Reader   io.Reader     // used instead of Path when set
	Interval time.Duration // pause between frames; 0 replays at full speed

	skipped int
}

// Name implements Source.
func (r *Replay) Name() string { return "replay" }

// Skipped returns the number of malformed lines seen by the last Run.
func (r *Replay) Skipped() int { return r.skipped }

// Run implements Source.
func (r *Replay) Run(ctx context.Context, events chan<- rtvi.Event) error {
	done := make(chan struct{})
	defer close(done)
	em := emitter{ctx: ctx, done: done, events: events, now: time.Now}

	in := r.Reader
	if in == nil {
		f, err := os.Open(r.Path)
		if err != nil {
			return fmt.Errorf("opening capture: %w", err)
		}
		defer f.Close()
		in = f
	}

	em.state(rtvi.StateConnected)
	r.skipped = 0

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		ev, ok, err := rtvi.Decode(b, time.Now())
		if err != nil {
			r.skipped++
			slog.Warn("skipping capture line", "line", line, "err", err)
			continue
		}
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		em.send(ev)

		if r.Interval > 0 {
			select {
			case <-time.After(r.Interval):
			case <-ctx.Done():
				return nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}
	em.state(rtvi.StateDisconnected)
	return nil
}
