// Package telegraph bridges the mail assistant to chat platforms (Telegram,
// Discord, Slack). It owns the platform-neutral event and card types, the
// access-controlled router, the card renderer and the daemon loop.
package telegraph

import (
	"context"
	"errors"
	"time"
)

// MaxFileSize caps the size of a file fetched from a chat platform.
const MaxFileSize = 20 << 20

// ErrFileTooLarge is returned by Fetch when a file exceeds MaxFileSize.
var ErrFileTooLarge = errors.New("telegraph: file exceeds size limit")

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management, card delivery and file retrieval
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundEvent, error)

	// Send posts a new message and returns its platform message ID.
	Send(ctx context.Context, chatID string, card Card) (string, error)

	// Edit replaces the text and buttons of an existing message. It fails
	// if the message no longer exists or cannot be edited.
	Edit(ctx context.Context, chatID, messageID string, card Card) error

	// Delete removes a message.
	Delete(ctx context.Context, chatID, messageID string) error

	// Fetch downloads the content behind a file reference.
	Fetch(ctx context.Context, ref FileRef) (*FetchedFile, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Acknowledger is an optional interface for platforms that expect button
// presses to be answered (Telegram callback queries, Discord interactions).
// An empty text acknowledges silently.
type Acknowledger interface {
	Acknowledge(ctx context.Context, callbackID, text string) error
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// EventKind classifies an inbound event.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
	EventFile   EventKind = "file"
)

// FileKind is the platform's classification of an uploaded file.
type FileKind string

const (
	FileDocument  FileKind = "document"
	FilePhoto     FileKind = "photo"
	FileVideo     FileKind = "video"
	FileAnimation FileKind = "animation"
)

// InboundEvent represents something the user did in the chat.
type InboundEvent struct {
	Platform   string    // e.g. "telegram", "discord", "slack"
	Kind       EventKind // text, button or file
	ChatID     string    // conversation to reply into
	UserID     string    // platform-specific user identifier
	UserName   string    // human-readable username
	Text       string    // typed text, or caption of a file
	Payload    string    // opaque button payload
	MessageID  string    // message the event originated from (the card for buttons)
	CallbackID string    // identifier to acknowledge a button press
	File       *FileRef  // set for EventFile
	Timestamp  time.Time // when the event happened
}

// FileRef points at an uploaded file on the chat platform. Name and MIMEType
// are empty when the platform did not supply them.
type FileRef struct {
	ID       string
	Name     string
	MIMEType string
	Kind     FileKind
	URL      string // direct download URL when the platform provides one
}

// FetchedFile is a downloaded file. Name is the platform-resolved name when
// the upload carried none.
type FetchedFile struct {
	Name     string
	MIMEType string
	Data     []byte
}
