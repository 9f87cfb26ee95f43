package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/courier/internal/telegraph"
)

// --- Mock Discord session ---

type mockSession struct {
	mu          sync.Mutex
	opened      bool
	closeCalled bool
	openErr     error
	sendErr     error
	editErr     error
	deleteErr   error
	sent        []sentMessage
	edits       []*discordgo.MessageEdit
	deletes     []string
	responses   []*discordgo.InteractionResponse
	handlers    []interface{}
	removeCount int
	nextID      int
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockSession() *mockSession {
	return &mockSession{}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.nextID)}, nil
}

func (m *mockSession) ChannelMessageEditComplex(e *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return nil, m.editErr
	}
	m.edits = append(m.edits, e)
	return &discordgo.Message{ID: e.ID}, nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, messageID)
	return nil
}

func (m *mockSession) InteractionRespond(in *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT_USER_ID")
	return a, sess
}

func receive(t *testing.T, ch <-chan telegraph.InboundEvent) telegraph.InboundEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound event")
	}
	return telegraph.InboundEvent{}
}

// --- New / Connect tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(AdapterOpts{})
	if err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error = %q, want to mention bot token", err.Error())
	}
}

func TestNew_WithBotToken(t *testing.T) {
	a, err := New(AdapterOpts{BotToken: "test-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
}

func TestConnect_Success(t *testing.T) {
	_, sess := newTestAdapter(t)
	if !sess.opened {
		t.Error("expected session to be opened")
	}
}

func TestConnect_OpenError(t *testing.T) {
	sess := newMockSession()
	sess.openErr = fmt.Errorf("gateway error")
	a, _ := New(AdapterOpts{Session: sess})
	err := a.Connect(context.Background())
	if err == nil {
		t.Fatal("expected open error")
	}
	if !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("error = %q, want open gateway error", err.Error())
	}
}

func TestConnect_AlreadyClosed(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.Close()
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error for closed adapter")
	}
}

func TestConnect_Idempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("second connect should not error: %v", err)
	}
}

// --- Listen tests ---

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error for not connected")
	}
}

func TestListen_RegistersHandlers(t *testing.T) {
	a, sess := newTestAdapter(t)
	before := len(sess.handlers)
	if _, err := a.Listen(context.Background()); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if got := len(sess.handlers) - before; got != 2 {
		t.Errorf("registered %d handlers, want message + interaction", got)
	}
}

func TestHandleMessage_Text(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())

	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "123456789012345678",
		ChannelID: "C1",
		Content:   "Q3 Update",
		Author:    &discordgo.User{ID: "U_ALICE", Username: "Alice"},
	}})

	ev := receive(t, ch)
	if ev.Platform != "discord" || ev.Kind != telegraph.EventText {
		t.Errorf("platform/kind = %s/%s, want discord/text", ev.Platform, ev.Kind)
	}
	if ev.ChatID != "C1" || ev.UserID != "U_ALICE" || ev.Text != "Q3 Update" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleMessage_Attachment(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())

	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "1",
		ChannelID: "C1",
		Author:    &discordgo.User{ID: "U_ALICE", Username: "Alice"},
		Attachments: []*discordgo.MessageAttachment{{
			ID: "A1", URL: "https://cdn.example/list.xlsx", Filename: "list.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}},
	}})

	ev := receive(t, ch)
	if ev.Kind != telegraph.EventFile || ev.File == nil {
		t.Fatalf("event = %+v, want file", ev)
	}
	if ev.File.Name != "list.xlsx" || ev.File.URL != "https://cdn.example/list.xlsx" || ev.File.Kind != telegraph.FileDocument {
		t.Errorf("file = %+v", ev.File)
	}
}

func TestHandleMessage_FiltersSelfAndBots(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())

	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "C1", Content: "self", Author: &discordgo.User{ID: "BOT_USER_ID"},
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "2", ChannelID: "C1", Content: "other bot", Author: &discordgo.User{ID: "B2", Bot: true},
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "3", ChannelID: "C1", Content: "nil author",
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "4", ChannelID: "C1", Content: "from human", Author: &discordgo.User{ID: "U_BOB"},
	}})

	if ev := receive(t, ch); ev.Text != "from human" {
		t.Errorf("expected human message, got %q", ev.Text)
	}
}

func TestHandleInteraction_Button(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())

	a.handleInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "I1",
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "C1",
		Message:   &discordgo.Message{ID: "card-1"},
		Member:    &discordgo.Member{User: &discordgo.User{ID: "U_ALICE", Username: "Alice"}},
		Data:      discordgo.MessageComponentInteractionData{CustomID: "tone-formal"},
	}})

	ev := receive(t, ch)
	if ev.Kind != telegraph.EventButton || ev.Payload != "tone-formal" {
		t.Errorf("event = %+v, want button tone-formal", ev)
	}
	if ev.MessageID != "card-1" || ev.CallbackID != "I1" || ev.UserID != "U_ALICE" {
		t.Errorf("event = %+v", ev)
	}

	if err := a.Acknowledge(context.Background(), "I1", ""); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if len(sess.responses) != 1 || sess.responses[0].Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("responses = %+v, want deferred update", sess.responses)
	}
	if err := a.Acknowledge(context.Background(), "I1", ""); err == nil {
		t.Error("second acknowledge of the same interaction succeeded")
	}
}

func TestAcknowledge_WithTextIsEphemeral(t *testing.T) {
	a, sess := newTestAdapter(t)
	a.Listen(context.Background())
	a.handleInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:   "I2",
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "U_EVE"},
		Data: discordgo.MessageComponentInteractionData{CustomID: "main-menu"},
	}})
	<-a.inbound

	if err := a.Acknowledge(context.Background(), "I2", "not allowed"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	resp := sess.responses[0]
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("response = %+v, want ephemeral message", resp)
	}
}

// --- Send / Edit / Delete tests ---

func TestSend_WithButtons(t *testing.T) {
	a, sess := newTestAdapter(t)
	id, err := a.Send(context.Background(), "C1", telegraph.Card{
		Text: "Choose",
		Buttons: [][]telegraph.Button{
			{{Label: "AI", Payload: "create-ai"}, {Label: "Manual", Payload: "create-manual"}},
			{{Label: "Back", Payload: "back"}},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("id = %q, want msg-1", id)
	}
	data := sess.sent[0].data
	if data.Content != "Choose" || len(data.Components) != 2 {
		t.Fatalf("data = %+v", data)
	}
	row := data.Components[0].(discordgo.ActionsRow)
	if btn := row.Components[1].(discordgo.Button); btn.CustomID != "create-manual" {
		t.Errorf("button custom id = %q, want create-manual", btn.CustomID)
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if _, err := a.Send(context.Background(), "C1", telegraph.Card{Text: "x"}); err == nil {
		t.Fatal("expected error for not connected")
	}
}

func TestSend_Error(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErr = fmt.Errorf("boom")
	if _, err := a.Send(context.Background(), "C1", telegraph.Card{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEdit(t *testing.T) {
	a, sess := newTestAdapter(t)
	err := a.Edit(context.Background(), "C1", "msg-9", telegraph.Card{Text: "updated"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	e := sess.edits[0]
	if e.ID != "msg-9" || e.Channel != "C1" || e.Content == nil || *e.Content != "updated" {
		t.Errorf("edit = %+v", e)
	}
	if e.Components == nil || len(*e.Components) != 0 {
		t.Error("edit without buttons must clear components")
	}

	sess.editErr = fmt.Errorf("unknown message")
	if err := a.Edit(context.Background(), "C1", "gone", telegraph.Card{Text: "x"}); err == nil {
		t.Fatal("expected edit error")
	}
}

func TestDelete(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Delete(context.Background(), "C1", "msg-3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(sess.deletes) != 1 || sess.deletes[0] != "msg-3" {
		t.Errorf("deletes = %v", sess.deletes)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("email\na@x.com\n"))
	}))
	defer srv.Close()

	a, err := New(AdapterOpts{Session: newMockSession(), HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f, err := a.Fetch(context.Background(), telegraph.FileRef{ID: "A1", Name: "list.csv", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if f.Name != "list.csv" || !strings.Contains(string(f.Data), "a@x.com") {
		t.Errorf("fetched = %+v", f)
	}

	if _, err := a.Fetch(context.Background(), telegraph.FileRef{ID: "A2"}); err == nil {
		t.Fatal("expected error for attachment without URL")
	}
}

func TestBuildComponents_Limits(t *testing.T) {
	var rows [][]telegraph.Button
	for i := 0; i < 7; i++ {
		var row []telegraph.Button
		for j := 0; j < 7; j++ {
			row = append(row, telegraph.Button{Label: "b", Payload: fmt.Sprintf("p%d-%d", i, j)})
		}
		rows = append(rows, row)
	}
	comps := buildComponents(rows)
	if len(comps) != maxRows {
		t.Fatalf("rows = %d, want %d", len(comps), maxRows)
	}
	if n := len(comps[0].(discordgo.ActionsRow).Components); n != maxButtonsPerRow {
		t.Errorf("buttons per row = %d, want %d", n, maxButtonsPerRow)
	}
	if buildComponents(nil) != nil {
		t.Error("no buttons should produce no components")
	}
}

func TestFileKind(t *testing.T) {
	tests := map[string]telegraph.FileKind{
		"image/png":       telegraph.FilePhoto,
		"image/gif":       telegraph.FileAnimation,
		"video/mp4":       telegraph.FileVideo,
		"application/pdf": telegraph.FileDocument,
		"":                telegraph.FileDocument,
	}
	for ct, want := range tests {
		if got := fileKind(ct); got != want {
			t.Errorf("fileKind(%q) = %s, want %s", ct, got, want)
		}
	}
}

// --- Close tests ---

func TestClose_Idempotent(t *testing.T) {
	a, sess := newTestAdapter(t)
	a.Listen(context.Background())
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !sess.closeCalled {
		t.Error("session not closed")
	}
	if sess.removeCount != 2 {
		t.Errorf("removed %d handlers, want 2", sess.removeCount)
	}
	// Events after close are dropped rather than panicking.
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "9", ChannelID: "C1", Content: "late", Author: &discordgo.User{ID: "U"},
	}})
}

// --- retryOnRateLimit tests ---

func TestRetryOnRateLimit_RetriesAndSucceeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 10 * time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	a, _ := newTestAdapter(t)
	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("some other error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("should not retry non-rate-limit errors, calls = %d", calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 10 * time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.retryOnRateLimit(ctx, func() error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Verify interface compliance ---

var (
	_ telegraph.Adapter      = (*Adapter)(nil)
	_ telegraph.Acknowledger = (*Adapter)(nil)
	_ telegraph.BotUserIDer  = (*Adapter)(nil)
)
