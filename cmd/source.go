package cmd

import (
	"fmt"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/conversation"
	"github.com/theirongolddev/voxdeck/internal/live"
	"github.com/theirongolddev/voxdeck/internal/rtvi"
	"github.com/theirongolddev/voxdeck/internal/store"
	"github.com/theirongolddev/voxdeck/internal/transport"
)

// version is stamped at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

func client() transport.Client {
	return transport.Client{Library: "voxdeck", Version: version}
}

// newSource builds the configured transport.
func newSource(cfg config.Config) transport.Source {
	if cfg.Connection.Transport == config.TransportWebSocket {
		return &transport.WebSocket{
			URL:    cfg.Connection.WebSocketURL,
			APIKey: cfg.Connection.APIKey,
			Client: client(),
		}
	}
	return &transport.WebRTC{
		OfferURL:   cfg.Connection.OfferURL,
		APIKey:     cfg.Connection.APIKey,
		ICEServers: cfg.Connection.ICEServers,
		Client:     client(),
	}
}

// assistantKind maps the assistant_text setting to the bot stream shown
// as assistant turns.
func assistantKind(cfg config.Config) rtvi.Kind {
	switch cfg.Connection.AssistantText {
	case "llm":
		return rtvi.KindBotLLMText
	case "transcription":
		return rtvi.KindBotTranscription
	}
	return rtvi.KindBotTTSText
}

// openArchive opens the session archive, or returns nil when disabled.
func openArchive(cfg config.Config) (*store.Archive, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	a, err := store.Open(config.ArchivePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return a, nil
}

// newHub wires a hub for cfg. archiver may be nil.
func newHub(cfg config.Config, archiver live.Archiver) *live.Hub {
	opts := []live.Option{
		live.WithConversationOptions(conversation.WithAssistantSource(assistantKind(cfg))),
	}
	if archiver != nil {
		opts = append(opts, live.WithArchiver(archiver))
	}
	return live.New(opts...)
}

// archiverOf avoids handing the hub a typed nil.
func archiverOf(a *store.Archive) live.Archiver {
	if a == nil {
		return nil
	}
	return a
}
