package conversation

import (
	"testing"
	"time"

	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
)

var t0 = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func userFinal(text string) rtvi.Event {
	return rtvi.Event{Kind: rtvi.KindUserTranscription, Text: text, Final: true, At: t0}
}

func botText(text string) rtvi.Event {
	return rtvi.Event{Kind: rtvi.KindBotTTSText, Text: text, At: t0}
}

func TestTurnsAssembleFromParts(t *testing.T) {
	s := New()
	s.Apply(rtvi.Event{Kind: rtvi.KindUserStartedSpeaking})
	s.Apply(userFinal("How are"))
	s.Apply(userFinal("you How are you"))
	s.Apply(rtvi.Event{Kind: rtvi.KindBotStartedSpeaking})
	s.Apply(botText("I am"))
	s.Apply(botText("fine."))
	s.Apply(rtvi.Event{Kind: rtvi.KindBotStoppedSpeaking})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || len(msgs[0].Parts) != 2 {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[0].Content != "How are you How are you" {
		t.Fatalf("Content = %q", msgs[0].Content)
	}
	if !msgs[0].Final || !msgs[1].Final {
		t.Fatal("turns not finalized")
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "I am fine." {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}

	lines := s.Rendered()
	if lines[0].Text != "How are you" {
		t.Fatalf("Rendered[0] = %q, want %q", lines[0].Text, "How are you")
	}
}

func TestInterimKeptSeparately(t *testing.T) {
	s := New()
	s.Apply(rtvi.Event{Kind: rtvi.KindUserTranscription, Text: "hel", At: t0})
	if s.Interim() != "hel" || s.Len() != 0 {
		t.Fatalf("Interim = %q, Len = %d", s.Interim(), s.Len())
	}
	s.Apply(userFinal("hello"))
	if s.Interim() != "" {
		t.Fatalf("Interim = %q after final, want empty", s.Interim())
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestOnlySelectedAssistantStream(t *testing.T) {
	s := New()
	s.Apply(rtvi.Event{Kind: rtvi.KindBotLLMText, Text: "Hi", At: t0})
	s.Apply(rtvi.Event{Kind: rtvi.KindBotTranscription, Text: "Hi", At: t0})
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}

	s = New(WithAssistantSource(rtvi.KindBotLLMText))
	s.Apply(rtvi.Event{Kind: rtvi.KindBotLLMText, Text: "Hi", At: t0})
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestUserSpeechClosesAssistantTurn(t *testing.T) {
	s := New()
	s.Apply(botText("one"))
	s.Apply(rtvi.Event{Kind: rtvi.KindUserStartedSpeaking})
	s.Apply(botText("two"))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[1].Final {
		t.Fatal("second turn should still be open")
	}
}

func TestBlankPartsIgnored(t *testing.T) {
	s := New()
	s.Apply(userFinal("   "))
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestMessagesAreCopies(t *testing.T) {
	s := New()
	s.Apply(userFinal("hello"))
	msgs := s.Messages()
	msgs[0].Parts[0].Text = "changed"
	if s.Messages()[0].Parts[0].Text != "hello" {
		t.Fatal("Messages returned shared parts")
	}
}

func TestClose(t *testing.T) {
	s := New()
	s.Apply(userFinal("hello"))
	s.Close()
	if !s.Messages()[0].Final {
		t.Fatal("Close did not finalize open turn")
	}
}
