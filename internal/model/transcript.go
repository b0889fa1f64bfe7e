package model

import "time"

// Role identifies who spoke a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one streamed fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// Message is one conversation turn as received from the feed.
// Content holds the raw text; Parts, when present, the fragments it was built from.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Parts     []Part    `json:"parts,omitempty"`
	Final     bool      `json:"final"`
}
