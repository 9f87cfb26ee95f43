// Package session holds the ephemeral per-user conversation state: the current
// step, the accumulated email draft, the live card message and the history of
// visited steps used for back-navigation. Nothing here survives a restart.
package session

import (
	"sync"
	"time"
)

// Step is a named state of the conversation state machine.
type Step string

// Conversation steps.
const (
	StepIdle               Step = "idle"
	StepChoosingMethod     Step = "choosing-method"
	StepAISubject          Step = "ai-subject"
	StepAIContent          Step = "ai-content"
	StepAITone             Step = "ai-tone"
	StepManualSubject      Step = "manual-subject"
	StepManualContent      Step = "manual-content"
	StepTemplateSelect     Step = "template-select"
	StepEmailReady         Step = "email-ready"
	StepEditingEmail       Step = "editing-email"
	StepWaitingAttachment  Step = "waiting-attachment"
	StepChoosingRecipients Step = "choosing-recipients"
	StepWaitingExcel       Step = "waiting-excel"
	StepManualRecipients   Step = "manual-recipients"
	StepConfirmRecipients  Step = "confirm-recipients"
	StepReadyToSend        Step = "ready-to-send"
)

// Channel records how the user last interacted with the bot.
type Channel int

const (
	// ChannelNone means no inbound event has been seen yet.
	ChannelNone Channel = iota
	// ChannelTyped is a typed message or a file upload.
	ChannelTyped
	// ChannelButton is an inline button press.
	ChannelButton
)

func (c Channel) String() string {
	switch c {
	case ChannelTyped:
		return "typed"
	case ChannelButton:
		return "button"
	default:
		return "none"
	}
}

// Method is how the draft content was produced.
type Method string

const (
	MethodAI       Method = "ai"
	MethodManual   Method = "manual"
	MethodTemplate Method = "template"
)

// Attachment is a file collected for the outgoing email.
type Attachment struct {
	Name     string
	Content  []byte
	MIMEType string
}

// Draft is the data accumulated across steps. Fields are only overwritten or
// appended; a transition never clears them.
type Draft struct {
	Subject           string
	Content           string
	Method            Method
	Brief             string // what the user asked the AI to write
	Tone              string // tone label passed to the AI
	Attachments       []Attachment
	Recipients        []string
	PendingRecipients []string
}

// Session is the state of one user's conversation. All fields must be accessed
// while holding the lock obtained from Store.Acquire.
type Session struct {
	UserID    string
	ChatID    string
	Step      Step
	Draft     Draft
	CardID    string  // message currently acting as the card; empty if none
	Channel   Channel // channel of the latest inbound event
	History   []Step  // most recent last
	UpdatedAt time.Time

	// generation is bumped on every mutation so scheduled work can detect
	// that the session moved on.
	generation uint64

	mu sync.Mutex
}

// SetStep moves the session to step. The previous step is pushed onto the
// history stack; setting the step the session is already in is a no-op.
func (s *Session) SetStep(step Step) {
	if step == s.Step {
		return
	}
	if s.Step != "" && s.Step != StepIdle {
		s.pushHistory(s.Step)
	}
	s.Step = step
	s.touch()
}

// pushHistory appends step unless it is already on top.
func (s *Session) pushHistory(step Step) {
	if n := len(s.History); n > 0 && s.History[n-1] == step {
		return
	}
	s.History = append(s.History, step)
}

// Back pops the history stack and makes the popped step current. It returns
// false when the history is empty; the session is left unchanged in that case.
func (s *Session) Back() (Step, bool) {
	for len(s.History) > 0 {
		n := len(s.History)
		prev := s.History[n-1]
		s.History = s.History[:n-1]
		if prev == s.Step {
			continue
		}
		s.Step = prev
		s.touch()
		return prev, true
	}
	return "", false
}

// Previous returns the top of the history stack without popping it.
func (s *Session) Previous() (Step, bool) {
	if len(s.History) == 0 {
		return "", false
	}
	return s.History[len(s.History)-1], true
}

// Reset drops the draft and history and puts the session on step. The card
// and channel are kept so the next render can reuse the live card.
func (s *Session) Reset(step Step) {
	s.Step = step
	s.Draft = Draft{}
	s.History = nil
	s.touch()
}

// SetCard records the live card message.
func (s *Session) SetCard(messageID string) {
	s.CardID = messageID
	s.touch()
}

// Generation returns a counter that changes on every mutation.
func (s *Session) Generation() uint64 {
	return s.generation
}

// Touch marks the session as modified.
func (s *Session) Touch() {
	s.touch()
}

func (s *Session) touch() {
	s.generation++
	s.UpdatedAt = now()
}

// now is overridden in tests.
var now = time.Now
