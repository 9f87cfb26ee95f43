package telegraph

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/courier/internal/session"
)

// RenderMode is how a card reaches the chat.
type RenderMode int

const (
	// RenderReplace deletes the previous card (if any) and sends a new one.
	RenderReplace RenderMode = iota
	// RenderEdit updates the previous card in place.
	RenderEdit
)

func (m RenderMode) String() string {
	if m == RenderEdit {
		return "edit"
	}
	return "replace"
}

// Strategy picks the render mode. A button press on an existing card edits
// it so the conversation feels like one card updating; anything else removes
// the old card and posts a fresh one below the user's message.
func Strategy(channel session.Channel, hasCard bool) RenderMode {
	if channel == session.ChannelButton && hasCard {
		return RenderEdit
	}
	return RenderReplace
}

// Renderer keeps one live card per session in sync with the conversation.
type Renderer struct {
	adapter Adapter
}

// NewRenderer creates a Renderer that draws through adapter.
func NewRenderer(adapter Adapter) (*Renderer, error) {
	if adapter == nil {
		return nil, fmt.Errorf("telegraph: renderer: adapter is required")
	}
	return &Renderer{adapter: adapter}, nil
}

// Render shows card in chatID. cardID is the currently live card ("" when
// none). It returns the ID of the message that is live afterwards. Failures to
// delete stale cards are logged and never returned.
func (r *Renderer) Render(ctx context.Context, chatID, cardID string, channel session.Channel, card Card) (string, error) {
	switch Strategy(channel, cardID != "") {
	case RenderEdit:
		err := r.adapter.Edit(ctx, chatID, cardID, card)
		if err == nil {
			return cardID, nil
		}
		log.Printf("telegraph: render: edit card %s: %v", cardID, err)
		id, err := r.adapter.Send(ctx, chatID, card)
		if err != nil {
			return "", fmt.Errorf("telegraph: render: send replacement: %w", err)
		}
		r.deleteStale(ctx, chatID, cardID)
		return id, nil

	default:
		if cardID != "" {
			r.deleteStale(ctx, chatID, cardID)
		}
		id, err := r.adapter.Send(ctx, chatID, card)
		if err != nil {
			return "", fmt.Errorf("telegraph: render: send: %w", err)
		}
		return id, nil
	}
}

func (r *Renderer) deleteStale(ctx context.Context, chatID, messageID string) {
	if err := r.adapter.Delete(ctx, chatID, messageID); err != nil {
		log.Printf("telegraph: render: delete card %s: %v", messageID, err)
	}
}
