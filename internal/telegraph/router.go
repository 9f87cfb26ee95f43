package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// DefaultRefusal is sent to users that are not on the allow-list.
const DefaultRefusal = "You are not authorized to use this bot."

// Handler consumes authorized inbound events. The conversation engine
// implements it.
type Handler interface {
	HandleEvent(ctx context.Context, ev InboundEvent)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev InboundEvent)

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev InboundEvent) { f(ctx, ev) }

// Router checks every inbound event against the allow-list and hands
// authorized events to the Handler on the sender's ordered lane. Refused
// events never reach the Handler, so no conversation state is created for
// them.
type Router struct {
	handler   Handler
	adapter   Adapter
	allow     map[string]bool
	botUserID string // the bot's own user ID (to filter self-messages)
	refusal   string
	out       io.Writer
	lanes     *lanes
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Handler   Handler
	Adapter   Adapter
	Allow     []string  // user IDs allowed to use the bot
	BotUserID string    // bot's user ID for self-message filtering
	Refusal   string    // defaults to DefaultRefusal
	Out       io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("telegraph: router: handler is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	if len(opts.Allow) == 0 {
		return nil, fmt.Errorf("telegraph: router: allow-list is empty")
	}
	allow := make(map[string]bool, len(opts.Allow))
	for _, id := range opts.Allow {
		if id = strings.TrimSpace(id); id != "" {
			allow[id] = true
		}
	}
	refusal := opts.Refusal
	if refusal == "" {
		refusal = DefaultRefusal
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		handler:   opts.Handler,
		adapter:   opts.Adapter,
		allow:     allow,
		botUserID: opts.BotUserID,
		refusal:   refusal,
		out:       out,
		lanes:     newLanes(),
	}, nil
}

// Allowed reports whether userID is on the allow-list.
func (r *Router) Allowed(userID string) bool {
	return r.allow[userID]
}

// Handle classifies and routes a single inbound event. Routing paths:
//  1. Bot self-message → ignore
//  2. Sender not allow-listed → fixed refusal, nothing else
//  3. Everything else → Handler, in order, on the sender's lane
func (r *Router) Handle(ctx context.Context, ev InboundEvent) {
	if r.botUserID != "" && ev.UserID == r.botUserID {
		return
	}

	fmt.Fprintf(r.out, "telegraph: router: recv [%s chat=%s user=%s] %s\n",
		ev.Kind, ev.ChatID, ev.UserName, describe(ev))

	if !r.Allowed(ev.UserID) {
		fmt.Fprintf(r.out, "telegraph: router: → refuse user %s\n", ev.UserID)
		r.refuse(ctx, ev)
		return
	}

	r.lanes.submit(ev.UserID, func() {
		// Answer the press first; platforms expire callbacks long before a
		// slow AI or mail call returns.
		if ev.Kind == EventButton {
			r.ack(ctx, ev, "")
		}
		r.handler.HandleEvent(ctx, ev)
	})
}

// Wait blocks until all queued events have been handled.
func (r *Router) Wait() {
	r.lanes.wait()
}

// refuse answers an unauthorized sender. Button presses are answered through
// the callback when the platform supports it; everything else gets a plain
// message that is not tracked as a card.
func (r *Router) refuse(ctx context.Context, ev InboundEvent) {
	if ev.Kind == EventButton {
		if _, ok := r.adapter.(Acknowledger); ok {
			r.ack(ctx, ev, r.refusal)
			return
		}
	}
	if _, err := r.adapter.Send(ctx, ev.ChatID, Card{Text: r.refusal}); err != nil {
		log.Printf("telegraph: router: send refusal: %v", err)
	}
}

func (r *Router) ack(ctx context.Context, ev InboundEvent, text string) {
	a, ok := r.adapter.(Acknowledger)
	if !ok || ev.CallbackID == "" {
		return
	}
	if err := a.Acknowledge(ctx, ev.CallbackID, text); err != nil {
		log.Printf("telegraph: router: acknowledge %s: %v", ev.CallbackID, err)
	}
}

// describe renders a short log summary of an event.
func describe(ev InboundEvent) string {
	switch ev.Kind {
	case EventButton:
		return fmt.Sprintf("button %q", ev.Payload)
	case EventFile:
		if ev.File != nil {
			return fmt.Sprintf("file %s %q", ev.File.Kind, ev.File.Name)
		}
		return "file"
	default:
		return fmt.Sprintf("%q", truncate(ev.Text, 80))
	}
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
