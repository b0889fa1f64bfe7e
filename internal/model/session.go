// Package model defines domain types for voxdeck conversations and telemetry.
package model

import "time"

// SessionSummary is the final state of one connection, as archived.
type SessionSummary struct {
	SessionID string
	Source    string
	StartedAt time.Time
	EndedAt   time.Time

	TTFBBatches      int
	CharacterBatches int

	LastTTFB   TTFBSnapshot
	MeanTTFB   TTFBSnapshot
	Cumulative TokenUsage

	History  []TTFBPoint
	Messages []Message
}

// DurationSecs returns the wall-clock length of the session.
func (s SessionSummary) DurationSecs() int64 {
	if s.StartedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return int64(s.EndedAt.Sub(s.StartedAt).Seconds())
}
