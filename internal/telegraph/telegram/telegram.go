// Package telegram implements the telegraph Adapter for Telegram using long
// polling. Cards are messages with an inline keyboard; button presses arrive
// as callback queries.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/courier/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// pollTimeout is the long-polling timeout in seconds.
	pollTimeout = 60
)

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Adapter implements telegraph.Adapter for the Telegram Bot API.
type Adapter struct {
	bot        botAPI
	botToken   string
	httpClient *http.Client
	botUserID  string
	fileURL    func(filePath string) string

	mu         sync.Mutex
	connected  bool
	closed     bool
	inbound    chan telegraph.InboundEvent
	done       chan struct{}  // closed by Close; unblocks pending emits
	emitting   sync.WaitGroup // emits in flight; Close waits before closing inbound
	retryAfter time.Duration  // fallback wait when Telegram gives no retry_after
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken   string       // token issued by @BotFather
	HTTPClient *http.Client // for file downloads; defaults to http.DefaultClient
	// For testing: inject a mock bot instead of the real Bot API. BotUserID
	// is used as the bot's own ID in that case.
	Bot       botAPI
	BotUserID string
	// FileURL overrides how a file path is turned into a download URL.
	FileURL func(filePath string) string
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	a := &Adapter{
		bot:        opts.Bot,
		botToken:   opts.BotToken,
		httpClient: client,
		botUserID:  opts.BotUserID,
		fileURL:    opts.FileURL,
		inbound:    make(chan telegraph.InboundEvent, 100),
		done:       make(chan struct{}),
		retryAfter: time.Second,
	}
	if a.fileURL == nil {
		a.fileURL = func(filePath string) string {
			return fmt.Sprintf(tgbotapi.FileEndpoint, a.botToken, filePath)
		}
	}
	return a, nil
}

// Connect authenticates the bot token against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create the real client if not injected (production path). NewBotAPI
	// calls getMe, so a bad token fails here.
	if a.bot == nil {
		api, err := tgbotapi.NewBotAPIWithClient(a.botToken, tgbotapi.APIEndpoint, a.httpClient)
		if err != nil {
			return fmt.Errorf("telegram: connect: %w", err)
		}
		a.bot = api
		a.botUserID = strconv.FormatInt(api.Self.ID, 10)
		log.Printf("telegram: connected as @%s (ID: %d)", api.Self.UserName, api.Self.ID)
	}

	a.connected = true
	return nil
}

// Listen starts long polling and returns a channel of inbound events. The
// channel is closed when ctx is cancelled or the adapter is closed.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundEvent, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := a.bot.GetUpdatesChan(cfg)

	go a.pump(ctx, updates)
	return a.inbound, nil
}

// pump converts updates until the context ends or polling stops.
func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			a.handleUpdate(u)
		}
	}
}

// Send posts a card and returns its message ID.
func (a *Adapter) Send(ctx context.Context, chatID string, card telegraph.Card) (string, error) {
	if err := a.checkConnected(); err != nil {
		return "", err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(id, card.Text)
	msg.ParseMode = parseMode(card.Format)
	if len(card.Buttons) > 0 {
		msg.ReplyMarkup = buildKeyboard(card.Buttons)
	}

	var sent tgbotapi.Message
	err = a.retryOnRateLimit(ctx, func() error {
		var sendErr error
		sent, sendErr = a.bot.Send(msg)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("telegram: send message: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Edit replaces the text and inline keyboard of a card. Editing a message to
// identical content is treated as success.
func (a *Adapter) Edit(ctx context.Context, chatID, messageID string, card telegraph.Card) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q", messageID)
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(id, msgID, card.Text, buildKeyboard(card.Buttons))
	edit.ParseMode = parseMode(card.Format)

	err = a.retryOnRateLimit(ctx, func() error {
		_, reqErr := a.bot.Request(edit)
		return reqErr
	})
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

// Delete removes a message.
func (a *Adapter) Delete(ctx context.Context, chatID, messageID string) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q", messageID)
	}
	err = a.retryOnRateLimit(ctx, func() error {
		_, reqErr := a.bot.Request(tgbotapi.NewDeleteMessage(id, msgID))
		return reqErr
	})
	if err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// Fetch resolves a file ID to its server path and downloads it. When the
// upload carried no name the last element of the server path is used.
func (a *Adapter) Fetch(ctx context.Context, ref telegraph.FileRef) (*telegraph.FetchedFile, error) {
	if err := a.checkConnected(); err != nil {
		return nil, err
	}
	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: ref.ID})
	if err != nil {
		return nil, fmt.Errorf("telegram: get file: %w", err)
	}
	if file.FileSize > telegraph.MaxFileSize {
		return nil, telegraph.ErrFileTooLarge
	}
	data, err := telegraph.Download(ctx, a.httpClient, a.fileURL(file.FilePath), nil)
	if err != nil {
		if errors.Is(err, telegraph.ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("telegram: fetch file: %w", err)
	}

	name := ref.Name
	if name == "" && file.FilePath != "" {
		name = path.Base(file.FilePath)
	}
	return &telegraph.FetchedFile{Name: name, MIMEType: ref.MIMEType, Data: data}, nil
}

// Acknowledge answers a callback query, optionally with a toast text.
func (a *Adapter) Acknowledge(ctx context.Context, callbackID, text string) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	if _, err := a.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// Close stops polling and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.connected && a.bot != nil {
		a.bot.StopReceivingUpdates()
	}
	a.connected = false
	close(a.done)
	a.mu.Unlock()

	a.emitting.Wait()
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Telegram user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("telegram: not connected")
	}
	return nil
}

// emit delivers ev unless the adapter has been closed. The lock is not held
// while waiting for buffer space, and Close drops a pending event.
func (a *Adapter) emit(ev telegraph.InboundEvent) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.emitting.Add(1)
	a.mu.Unlock()
	defer a.emitting.Done()

	select {
	case a.inbound <- ev:
	case <-a.done:
	}
}

// handleUpdate converts a Telegram update into an inbound event.
func (a *Adapter) handleUpdate(u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		a.handleCallback(u.CallbackQuery)
	case u.Message != nil:
		a.handleMessage(u.Message)
	}
}

func (a *Adapter) handleMessage(m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || m.From.IsBot {
		return
	}
	ev := telegraph.InboundEvent{
		Platform:  "telegram",
		Kind:      telegraph.EventText,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		UserName:  userName(m.From),
		Text:      m.Text,
		MessageID: strconv.Itoa(m.MessageID),
		Timestamp: m.Time(),
	}
	if ref := fileRef(m); ref != nil {
		ev.Kind = telegraph.EventFile
		ev.File = ref
		ev.Text = m.Caption
	}
	a.emit(ev)
}

func (a *Adapter) handleCallback(q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	ev := telegraph.InboundEvent{
		Platform:   "telegram",
		Kind:       telegraph.EventButton,
		UserID:     strconv.FormatInt(q.From.ID, 10),
		UserName:   userName(q.From),
		Payload:    q.Data,
		CallbackID: q.ID,
		Timestamp:  time.Now(),
	}
	if q.Message != nil {
		ev.MessageID = strconv.Itoa(q.Message.MessageID)
		if q.Message.Chat != nil {
			ev.ChatID = strconv.FormatInt(q.Message.Chat.ID, 10)
		}
	}
	if ev.ChatID == "" {
		// Private chats share the user's ID.
		ev.ChatID = ev.UserID
	}
	a.emit(ev)
}

// fileRef extracts the uploaded file of a message, if any. Photos use the
// largest size and carry no name; video and animation get a default MIME type when Telegram
// omits one.
func fileRef(m *tgbotapi.Message) *telegraph.FileRef {
	switch {
	case m.Document != nil:
		return &telegraph.FileRef{
			ID:       m.Document.FileID,
			Name:     m.Document.FileName,
			MIMEType: m.Document.MimeType,
			Kind:     telegraph.FileDocument,
		}
	case len(m.Photo) > 0:
		largest := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		return &telegraph.FileRef{
			ID:       largest.FileID,
			MIMEType: "image/jpeg",
			Kind:     telegraph.FilePhoto,
		}
	case m.Video != nil:
		return &telegraph.FileRef{
			ID:       m.Video.FileID,
			Name:     m.Video.FileName,
			MIMEType: orDefault(m.Video.MimeType, "video/mp4"),
			Kind:     telegraph.FileVideo,
		}
	case m.Animation != nil:
		return &telegraph.FileRef{
			ID:       m.Animation.FileID,
			Name:     m.Animation.FileName,
			MIMEType: orDefault(m.Animation.MimeType, "image/gif"),
			Kind:     telegraph.FileAnimation,
		}
	}
	return nil
}

// buildKeyboard translates button rows into an inline keyboard. An empty
// keyboard (not nil) removes existing buttons on edit.
func buildKeyboard(rows [][]telegraph.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Payload))
		}
		if len(buttons) > 0 {
			keyboard = append(keyboard, buttons)
		}
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func parseMode(f telegraph.Format) string {
	if f == telegraph.FormatMarkdown {
		return tgbotapi.ModeMarkdown
	}
	return ""
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", chatID)
	}
	return id, nil
}

func userName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// isNotModified reports whether err is Telegram's refusal to apply an edit
// that changes nothing.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// retryOnRateLimit calls fn and retries when Telegram answers 429, waiting
// for the advertised retry_after.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = a.retryAfter
		}
		log.Printf("telegram: rate limited, retrying in %v (attempt %d/%d)", wait, attempt+1, maxRetries)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
