package telegraph

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// SentCard is a card recorded by MockAdapter.
type SentCard struct {
	ChatID    string
	MessageID string
	Card      Card
}

// Ack is a callback acknowledgement recorded by MockAdapter.
type Ack struct {
	CallbackID string
	Text       string
}

// MockAdapter implements Adapter and Acknowledger for testing. It records
// sent, edited and deleted messages and allows simulating inbound events via
// SimulateInbound.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan InboundEvent
	nextID    int
	live      map[string]Card // messageID → current content
	sent      []SentCard
	edits     []SentCard
	deletes   []string
	acks      []Ack
	files     map[string]*FetchedFile
	botUserID string

	// FailEdit makes every Edit call fail.
	FailEdit bool
	// FailDelete makes every Delete call fail.
	FailDelete bool
	// FailSend makes every Send call fail.
	FailSend bool
	// FetchErr is returned from Fetch when set.
	FetchErr error
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan InboundEvent, 100),
		live:    make(map[string]Card),
		files:   make(map[string]*FetchedFile),
	}
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the card and returns a fresh message ID.
func (m *MockAdapter) Send(ctx context.Context, chatID string, card Card) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return "", fmt.Errorf("mock adapter: send failed")
	}
	m.nextID++
	id := "m" + strconv.Itoa(m.nextID)
	m.live[id] = card
	m.sent = append(m.sent, SentCard{ChatID: chatID, MessageID: id, Card: card})
	return id, nil
}

// Edit replaces the content of a live message.
func (m *MockAdapter) Edit(ctx context.Context, chatID, messageID string, card Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEdit {
		return fmt.Errorf("mock adapter: edit failed")
	}
	if _, ok := m.live[messageID]; !ok {
		return fmt.Errorf("mock adapter: message %s not found", messageID)
	}
	m.live[messageID] = card
	m.edits = append(m.edits, SentCard{ChatID: chatID, MessageID: messageID, Card: card})
	return nil
}

// Delete removes a live message.
func (m *MockAdapter) Delete(ctx context.Context, chatID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return fmt.Errorf("mock adapter: delete failed")
	}
	if _, ok := m.live[messageID]; !ok {
		return fmt.Errorf("mock adapter: message %s not found", messageID)
	}
	delete(m.live, messageID)
	m.deletes = append(m.deletes, messageID)
	return nil
}

// Fetch returns a file registered with SetFile.
func (m *MockAdapter) Fetch(ctx context.Context, ref FileRef) (*FetchedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	f, ok := m.files[ref.ID]
	if !ok {
		return nil, fmt.Errorf("mock adapter: file %s not found", ref.ID)
	}
	cp := *f
	return &cp, nil
}

// Acknowledge records a callback answer.
func (m *MockAdapter) Acknowledge(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks = append(m.acks, Ack{CallbackID: callbackID, Text: text})
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends an event into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(ev InboundEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.inbound <- ev
}

// SetFile registers content returned by Fetch for file id.
func (m *MockAdapter) SetFile(id string, f *FetchedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = f
}

// Live returns the current content of message id.
func (m *MockAdapter) Live(id string) (Card, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.live[id]
	return c, ok
}

// LiveCount returns the number of messages that have not been deleted.
func (m *MockAdapter) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// LastSent returns the most recently sent card.
// Returns zero value and false if nothing has been sent.
func (m *MockAdapter) LastSent() (SentCard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentCard{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of Send calls that succeeded.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// EditCount returns the number of Edit calls that succeeded.
func (m *MockAdapter) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edits)
}

// AllSent returns a copy of all sent cards.
func (m *MockAdapter) AllSent() []SentCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentCard, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deleted returns a copy of all deleted message IDs.
func (m *MockAdapter) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deletes))
	copy(out, m.deletes)
	return out
}

// Acks returns a copy of all recorded callback answers.
func (m *MockAdapter) Acks() []Ack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ack, len(m.acks))
	copy(out, m.acks)
	return out
}

// Renders returns the number of successful sends plus edits.
func (m *MockAdapter) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent) + len(m.edits)
}
