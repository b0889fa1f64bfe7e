// Package conversation assembles RTVI text events into conversation turns.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/transcript"
)

// Line is a message prepared for display.
type Line struct {
	ID        string
	Role      model.Role
	Text      string
	CreatedAt time.Time
	Final     bool
}

// Store holds the turns of one connection.
type Store struct {
	assistantKind rtvi.Kind

	mu       sync.RWMutex
	messages []model.Message
	open     map[model.Role]int // index into messages of the open turn
	interim  string
}

// Option configures a Store.
type Option func(*Store)

// WithAssistantSource selects which bot text stream builds assistant turns.
// The backend sends the same words on several streams; only one is used.
func WithAssistantSource(k rtvi.Kind) Option {
	return func(s *Store) { s.assistantKind = k }
}

// New returns an empty store using bot-tts-text for assistant turns.
func New(opts ...Option) *Store {
	s := &Store{
		assistantKind: rtvi.KindBotTTSText,
		open:          make(map[model.Role]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply folds one event into the conversation. It reports whether the
// visible conversation changed.
func (s *Store) Apply(ev rtvi.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case rtvi.KindUserTranscription:
		if !ev.Final {
			s.interim = ev.Text
			return true
		}
		s.interim = ""
		s.closeTurn(model.RoleAssistant)
		s.appendPart(model.RoleUser, ev.Text, ev.At)
		return true

	case rtvi.KindUserStartedSpeaking:
		return s.closeTurn(model.RoleAssistant)

	case rtvi.KindBotStartedSpeaking, rtvi.KindBotLLMStarted:
		changed := s.interim != ""
		s.interim = ""
		return s.closeTurn(model.RoleUser) || changed

	case rtvi.KindBotStoppedSpeaking:
		return s.closeTurn(model.RoleAssistant)
	}

	if ev.Kind == s.assistantKind {
		s.closeTurn(model.RoleUser)
		s.appendPart(model.RoleAssistant, ev.Text, ev.At)
		return true
	}
	return false
}

func (s *Store) appendPart(role model.Role, text string, at time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	idx, ok := s.open[role]
	if !ok {
		s.messages = append(s.messages, model.Message{
			ID:        uuid.NewString(),
			Role:      role,
			CreatedAt: at,
		})
		idx = len(s.messages) - 1
		s.open[role] = idx
	}
	m := &s.messages[idx]
	m.Parts = append(m.Parts, model.Part{Text: text})
	if m.Content == "" {
		m.Content = text
	} else {
		m.Content += " " + text
	}
}

func (s *Store) closeTurn(role model.Role) bool {
	idx, ok := s.open[role]
	if !ok {
		return false
	}
	s.messages[idx].Final = true
	delete(s.open, role)
	return true
}

// Close finalizes any open turns.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeTurn(model.RoleUser)
	s.closeTurn(model.RoleAssistant)
	s.interim = ""
}

// Messages returns copies of all turns in arrival order.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		m.Parts = append([]model.Part(nil), m.Parts...)
		out[i] = m
	}
	return out
}

// Rendered returns the turns with normalized display text.
func (s *Store) Rendered() []Line {
	msgs := s.Messages()
	out := make([]Line, len(msgs))
	for i, m := range msgs {
		out[i] = Line{
			ID:        m.ID,
			Role:      m.Role,
			Text:      transcript.Normalize(m),
			CreatedAt: m.CreatedAt,
			Final:     m.Final,
		}
	}
	return out
}

// Interim returns the in-progress user transcription, if any.
func (s *Store) Interim() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interim
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
