package telegraph

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

// recordingHandler records every event it receives.
type recordingHandler struct {
	mu     sync.Mutex
	events []InboundEvent
}

func (h *recordingHandler) HandleEvent(ctx context.Context, ev InboundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// plainAdapter hides MockAdapter's Acknowledger implementation.
type plainAdapter struct{ *MockAdapter }

func (p plainAdapter) Acknowledge() {}

func setupRouter(t *testing.T, allow ...string) (*Router, *MockAdapter, *recordingHandler, *bytes.Buffer) {
	t.Helper()
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	h := &recordingHandler{}
	var out bytes.Buffer
	r, err := NewRouter(RouterOpts{
		Handler: h,
		Adapter: adapter,
		Allow:   allow,
		Out:     &out,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r, adapter, h, &out
}

// --- NewRouter tests ---

func TestNewRouter_NilHandler(t *testing.T) {
	_, err := NewRouter(RouterOpts{Adapter: NewMockAdapter(), Allow: []string{"1"}})
	if err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestNewRouter_NilAdapter(t *testing.T) {
	_, err := NewRouter(RouterOpts{Handler: &recordingHandler{}, Allow: []string{"1"}})
	if err == nil {
		t.Fatal("expected error for nil adapter")
	}
}

func TestNewRouter_EmptyAllowList(t *testing.T) {
	_, err := NewRouter(RouterOpts{Handler: &recordingHandler{}, Adapter: NewMockAdapter()})
	if err == nil {
		t.Fatal("expected error for empty allow-list")
	}
}

// --- Handle tests ---

func TestHandle_AllowedUserReachesHandler(t *testing.T) {
	r, adapter, h, _ := setupRouter(t, "42")
	r.Handle(context.Background(), InboundEvent{Kind: EventText, ChatID: "c", UserID: "42", Text: "hi"})
	r.Wait()

	if h.count() != 1 {
		t.Fatalf("handler got %d events, want 1", h.count())
	}
	if adapter.SentCount() != 0 {
		t.Errorf("router sent %d messages for an allowed user", adapter.SentCount())
	}
}

func TestHandle_RefusesUnknownUser(t *testing.T) {
	r, adapter, h, out := setupRouter(t, "42")
	r.Handle(context.Background(), InboundEvent{Kind: EventText, ChatID: "c9", UserID: "99", Text: "hello"})
	r.Wait()

	if h.count() != 0 {
		t.Fatalf("handler got %d events for a refused user", h.count())
	}
	sent, ok := adapter.LastSent()
	if !ok {
		t.Fatal("no refusal sent")
	}
	if sent.ChatID != "c9" || sent.Card.Text != DefaultRefusal {
		t.Errorf("refusal = %+v, want %q to c9", sent, DefaultRefusal)
	}
	if !bytes.Contains(out.Bytes(), []byte("refuse")) {
		t.Errorf("log missing refusal line: %s", out.String())
	}
}

func TestHandle_RefusedButtonIsAcknowledged(t *testing.T) {
	r, adapter, h, _ := setupRouter(t, "42")
	r.Handle(context.Background(), InboundEvent{
		Kind: EventButton, ChatID: "c", UserID: "99", Payload: "main-menu", CallbackID: "cb1",
	})
	r.Wait()

	if h.count() != 0 {
		t.Fatal("refused button reached handler")
	}
	acks := adapter.Acks()
	if len(acks) != 1 || acks[0].CallbackID != "cb1" || acks[0].Text != DefaultRefusal {
		t.Errorf("acks = %+v, want refusal on cb1", acks)
	}
	if adapter.SentCount() != 0 {
		t.Errorf("sent %d messages, want refusal via callback only", adapter.SentCount())
	}
}

func TestHandle_AllowedButtonIsAcknowledgedSilently(t *testing.T) {
	r, adapter, _, _ := setupRouter(t, "42")
	r.Handle(context.Background(), InboundEvent{
		Kind: EventButton, ChatID: "c", UserID: "42", Payload: "back", CallbackID: "cb2",
	})
	r.Wait()

	acks := adapter.Acks()
	if len(acks) != 1 || acks[0].Text != "" {
		t.Errorf("acks = %+v, want one silent ack", acks)
	}
}

func TestHandle_CustomRefusal(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	r, err := NewRouter(RouterOpts{
		Handler: &recordingHandler{},
		Adapter: adapter,
		Allow:   []string{"1"},
		Refusal: "Bu botu kullanma yetkiniz yok.",
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	r.Handle(context.Background(), InboundEvent{Kind: EventText, ChatID: "c", UserID: "2"})
	sent, _ := adapter.LastSent()
	if sent.Card.Text != "Bu botu kullanma yetkiniz yok." {
		t.Errorf("refusal = %q", sent.Card.Text)
	}
}

func TestHandle_IgnoresSelf(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	h := &recordingHandler{}
	r, _ := NewRouter(RouterOpts{
		Handler:   h,
		Adapter:   adapter,
		Allow:     []string{"bot"},
		BotUserID: "bot",
		Out:       &bytes.Buffer{},
	})
	r.Handle(context.Background(), InboundEvent{Kind: EventText, UserID: "bot", Text: "echo"})
	r.Wait()
	if h.count() != 0 || adapter.SentCount() != 0 {
		t.Error("self message was processed")
	}
}

func TestHandle_PreservesOrderPerUser(t *testing.T) {
	r, _, h, _ := setupRouter(t, "42")
	texts := []string{"a", "b", "c", "d", "e"}
	for _, s := range texts {
		r.Handle(context.Background(), InboundEvent{Kind: EventText, UserID: "42", Text: s})
	}
	r.Wait()
	for i, ev := range h.events {
		if ev.Text != texts[i] {
			t.Fatalf("event %d = %q, want %q", i, ev.Text, texts[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate = %q, want %q", got, "abc...")
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("truncate = %q, want %q", got, "ab")
	}
}

func TestHandle_RefusedButtonWithoutAcknowledger(t *testing.T) {
	mock := NewMockAdapter()
	mock.Connect(context.Background())
	r, err := NewRouter(RouterOpts{
		Handler: &recordingHandler{},
		Adapter: plainAdapter{mock},
		Allow:   []string{"42"},
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	r.Handle(context.Background(), InboundEvent{Kind: EventButton, ChatID: "c", UserID: "7", CallbackID: "cb"})
	if mock.SentCount() != 1 {
		t.Fatalf("sent = %d, want refusal message", mock.SentCount())
	}
	if len(mock.Acks()) != 0 {
		t.Error("acknowledged through an adapter that does not support it")
	}
}
