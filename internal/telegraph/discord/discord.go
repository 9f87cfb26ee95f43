// Package discord implements the telegraph Adapter for Discord using the
// Gateway WebSocket. Cards are messages with button components; button
// presses arrive as component interactions.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/courier/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// maxButtonsPerRow and maxRows are Discord component limits.
	maxButtonsPerRow = 5
	maxRows          = 5
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// Adapter implements telegraph.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess       session
	botToken   string
	httpClient *http.Client
	botUserID  string

	mu             sync.Mutex
	connected      bool
	closed         bool
	inbound        chan telegraph.InboundEvent
	removeHandlers []func()
	pending        map[string]*discordgo.Interaction // interaction ID → unanswered interaction
	baseBackoff    time.Duration
	maxBackoff     time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken   string       // Discord bot token
	HTTPClient *http.Client // for attachment downloads; defaults to http.DefaultClient
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		httpClient:  client,
		inbound:     make(chan telegraph.InboundEvent, 100),
		pending:     make(map[string]*discordgo.Interaction),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		a.sess = dg
	}

	// Capture bot user ID on connect/reconnect.
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	// discordgo reconnects on its own; log it for observability.
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen returns a channel of inbound events from Discord. It registers
// message and interaction handlers on the Gateway session. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}

	a.removeHandlers = append(a.removeHandlers,
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessage(m)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(i)
		}),
	)
	return a.inbound, nil
}

// Send posts a card to a Discord channel and returns its message ID.
func (a *Adapter) Send(ctx context.Context, chatID string, card telegraph.Card) (string, error) {
	if err := a.checkConnected(); err != nil {
		return "", err
	}
	data := &discordgo.MessageSend{
		Content:    card.Text,
		Components: buildComponents(card.Buttons),
	}
	var msg *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var sendErr error
		msg, sendErr = a.sess.ChannelMessageSendComplex(chatID, data)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return msg.ID, nil
}

// Edit replaces the content and components of an existing card.
func (a *Adapter) Edit(ctx context.Context, chatID, messageID string, card telegraph.Card) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(chatID, messageID).SetContent(card.Text)
	components := buildComponents(card.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components

	err := a.retryOnRateLimit(ctx, func() error {
		_, editErr := a.sess.ChannelMessageEditComplex(edit)
		return editErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// Delete removes a message.
func (a *Adapter) Delete(ctx context.Context, chatID, messageID string) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	err := a.retryOnRateLimit(ctx, func() error {
		return a.sess.ChannelMessageDelete(chatID, messageID)
	})
	if err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// Fetch downloads an attachment from Discord's CDN.
func (a *Adapter) Fetch(ctx context.Context, ref telegraph.FileRef) (*telegraph.FetchedFile, error) {
	if ref.URL == "" {
		return nil, fmt.Errorf("discord: attachment %s has no URL", ref.ID)
	}
	data, err := telegraph.Download(ctx, a.httpClient, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("discord: fetch attachment: %w", err)
	}
	return &telegraph.FetchedFile{Name: ref.Name, MIMEType: ref.MIMEType, Data: data}, nil
}

// Acknowledge answers a component interaction. An empty text defers the
// update silently; otherwise the text is shown only to the presser.
func (a *Adapter) Acknowledge(ctx context.Context, callbackID, text string) error {
	a.mu.Lock()
	in, ok := a.pending[callbackID]
	delete(a.pending, callbackID)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("discord: unknown interaction %s", callbackID)
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if text != "" {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: text,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		}
	}
	if err := a.sess.InteractionRespond(in, resp); err != nil {
		return fmt.Errorf("discord: respond to interaction: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removeHandlers {
		remove()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Ready).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("discord: not connected")
	}
	return nil
}

// emit delivers ev unless the adapter has been closed.
func (a *Adapter) emit(ev telegraph.InboundEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.inbound <- ev
}

// handleMessage converts a Discord message into a text or file event.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Author.ID == a.BotUserID() {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)
	ev := telegraph.InboundEvent{
		Platform:  "discord",
		Kind:      telegraph.EventText,
		ChatID:    m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		MessageID: m.ID,
		Timestamp: ts,
	}
	if len(m.Attachments) > 0 {
		att := m.Attachments[0]
		ev.Kind = telegraph.EventFile
		ev.File = &telegraph.FileRef{
			ID:       att.ID,
			Name:     att.Filename,
			MIMEType: att.ContentType,
			Kind:     fileKind(att.ContentType),
			URL:      att.URL,
		}
	}
	a.emit(ev)
}

// handleInteraction converts a button press into a button event and parks
// the interaction until it is acknowledged.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}

	a.mu.Lock()
	a.pending[i.ID] = i.Interaction
	a.mu.Unlock()

	ev := telegraph.InboundEvent{
		Platform:   "discord",
		Kind:       telegraph.EventButton,
		ChatID:     i.ChannelID,
		UserID:     user.ID,
		UserName:   user.Username,
		Payload:    i.MessageComponentData().CustomID,
		CallbackID: i.ID,
		Timestamp:  time.Now(),
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}
	a.emit(ev)
}

// fileKind classifies an attachment by its content type.
func fileKind(contentType string) telegraph.FileKind {
	switch {
	case contentType == "image/gif":
		return telegraph.FileAnimation
	case len(contentType) > 6 && contentType[:6] == "image/":
		return telegraph.FilePhoto
	case len(contentType) > 6 && contentType[:6] == "video/":
		return telegraph.FileVideo
	default:
		return telegraph.FileDocument
	}
}

// buildComponents translates button rows into Discord action rows,
// truncating to Discord's component limits.
func buildComponents(rows [][]telegraph.Button) []discordgo.MessageComponent {
	var out []discordgo.MessageComponent
	for _, row := range rows {
		if len(out) == maxRows {
			log.Printf("discord: card has more than %d button rows; extra rows dropped", maxRows)
			break
		}
		var buttons []discordgo.MessageComponent
		for _, b := range row {
			if len(buttons) == maxButtonsPerRow {
				break
			}
			buttons = append(buttons, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: b.Payload,
			})
		}
		if len(buttons) > 0 {
			out = append(out, discordgo.ActionsRow{Components: buttons})
		}
	}
	return out
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		// Check if it's a rate limit error.
		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err // not a rate limit error
		}

		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}

		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
