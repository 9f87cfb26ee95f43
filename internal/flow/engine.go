// Package flow is the conversation engine: it owns the step graph, applies
// typed text, button presses and file uploads to the session draft and
// renders the card for the resulting step.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/zulandar/courier/internal/ai"
	"github.com/zulandar/courier/internal/draft"
	"github.com/zulandar/courier/internal/mailer"
	"github.com/zulandar/courier/internal/models"
	"github.com/zulandar/courier/internal/session"
	"github.com/zulandar/courier/internal/sheet"
	"github.com/zulandar/courier/internal/telegraph"
)

// DefaultMenuDelay is how long a send confirmation or a fatal AI error stays
// up before the root menu reappears.
const DefaultMenuDelay = 2 * time.Second

// StartCommand resets the conversation from any step.
const StartCommand = "/start"

// MailSender delivers a composed message and names the transport that did.
// *mailer.Chain satisfies it.
type MailSender interface {
	Send(ctx context.Context, msg *mailer.Message) (string, error)
}

// DeliveryRecorder persists send attempts. *db.DeliveryLog satisfies it.
type DeliveryRecorder interface {
	Record(ctx context.Context, d *models.Delivery) error
}

// Fetcher downloads uploaded files. Every telegraph.Adapter satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, ref telegraph.FileRef) (*telegraph.FetchedFile, error)
}

// Engine implements telegraph.Handler.
type Engine struct {
	store      *session.Store
	renderer   *telegraph.Renderer
	files      Fetcher
	ai         ai.Generator
	mail       MailSender
	deliveries DeliveryRecorder
	from       string
	footer     string
	locale     string
	msg        *catalog
	templates  []Template
	menuDelay  time.Duration
	afterFunc  func(time.Duration, func())
	out        io.Writer
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Store      *session.Store    // defaults to a new store
	Adapter    telegraph.Adapter // renders cards and fetches uploads
	AI         ai.Generator      // nil disables AI drafting
	Mail       MailSender        // nil disables sending
	Deliveries DeliveryRecorder  // optional send log
	From       string            // sender address; required with Mail
	Footer     string            // appended once to every body
	Locale     string            // "en" (default) or "tr"
	Templates  []Template        // added to, or replacing, the built-in ones
	MenuDelay  time.Duration     // defaults to DefaultMenuDelay
	AfterFunc  func(time.Duration, func())
	Out        io.Writer // defaults to os.Stdout
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("flow: engine: adapter is required")
	}
	if opts.Mail != nil && opts.From == "" {
		return nil, fmt.Errorf("flow: engine: from address is required")
	}
	renderer, err := telegraph.NewRenderer(opts.Adapter)
	if err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		store = session.NewStore()
	}
	locale := opts.Locale
	if locale == "" {
		locale = "en"
	}
	delay := opts.MenuDelay
	if delay <= 0 {
		delay = DefaultMenuDelay
	}
	after := opts.AfterFunc
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		store:      store,
		renderer:   renderer,
		files:      opts.Adapter,
		ai:         opts.AI,
		mail:       opts.Mail,
		deliveries: opts.Deliveries,
		from:       opts.From,
		footer:     opts.Footer,
		locale:     locale,
		msg:        lookup(locale),
		templates:  Templates(locale, opts.Templates),
		menuDelay:  delay,
		afterFunc:  after,
		out:        out,
	}, nil
}

// Store returns the session store the engine works on.
func (e *Engine) Store() *session.Store {
	return e.store
}

// HandleEvent applies one inbound event to the sender's session. The router
// only calls it for allow-listed users, one event per user at a time.
func (e *Engine) HandleEvent(ctx context.Context, ev telegraph.InboundEvent) {
	s, release := e.store.Acquire(ev.UserID, ev.ChatID)
	defer release()

	if ev.Kind == telegraph.EventButton {
		s.Channel = session.ChannelButton
	} else {
		s.Channel = session.ChannelTyped
	}
	s.Touch()

	switch ev.Kind {
	case telegraph.EventText:
		e.handleText(ctx, s, ev.Text)
	case telegraph.EventButton:
		e.handleButton(ctx, s, ev)
	case telegraph.EventFile:
		e.handleFile(ctx, s, ev)
	}
}

// render shows card and records the live message. Later renders within the
// same event update that message in place.
func (e *Engine) render(ctx context.Context, s *session.Session, card telegraph.Card) {
	id, err := e.renderer.Render(ctx, s.ChatID, s.CardID, s.Channel, card)
	if err != nil {
		log.Printf("flow: render %s for user %s: %v", s.Step, s.UserID, err)
		return
	}
	s.SetCard(id)
	s.Channel = session.ChannelButton
}

// goTo moves to step and renders its card.
func (e *Engine) goTo(ctx context.Context, s *session.Session, step session.Step) {
	s.SetStep(step)
	e.render(ctx, s, e.cardFor(s))
}

// scheduleRootMenu turns the card on screen into the root menu after the menu
// delay unless the session changed in the meantime.
func (e *Engine) scheduleRootMenu(ctx context.Context, s *session.Session) {
	userID, gen := s.UserID, s.Generation()
	e.afterFunc(e.menuDelay, func() {
		s, release, ok := e.store.AcquireExisting(userID)
		if !ok {
			return
		}
		defer release()
		if s.Generation() != gen {
			return
		}
		s.Channel = session.ChannelButton
		e.mainMenu(ctx, s)
	})
}

func (e *Engine) handleText(ctx context.Context, s *session.Session, text string) {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, StartCommand) {
		e.mainMenu(ctx, s)
		return
	}
	if text == "" {
		if s.Step == session.StepManualRecipients {
			e.render(ctx, s, e.prompt(e.msg.ManualRecipientsEmpty))
		}
		return
	}

	switch s.Step {
	case session.StepIdle:
		e.mainMenu(ctx, s)
	case session.StepAISubject:
		s.Draft.Subject = text
		e.goTo(ctx, s, session.StepAIContent)
	case session.StepAIContent:
		s.Draft.Brief = text
		e.goTo(ctx, s, session.StepAITone)
	case session.StepManualSubject:
		s.Draft.Subject = text
		e.goTo(ctx, s, session.StepManualContent)
	case session.StepManualContent:
		s.Draft.Content = text
		s.Draft.Method = session.MethodManual
		e.goTo(ctx, s, session.StepEmailReady)
	case session.StepEditingEmail:
		s.Draft.Content = text
		e.goTo(ctx, s, session.StepEmailReady)
	case session.StepManualRecipients:
		s.Draft.Recipients = draft.ParseRecipients(text)
		e.goTo(ctx, s, session.StepReadyToSend)
	default:
		fmt.Fprintf(e.out, "flow: ignoring text from %s in step %s\n", s.UserID, s.Step)
	}
}

func (e *Engine) handleButton(ctx context.Context, s *session.Session, ev telegraph.InboundEvent) {
	cmd, arg := ParseCommand(ev.Payload)
	fmt.Fprintf(e.out, "flow: %s pressed %s in step %s\n", s.UserID, cmd, s.Step)

	switch cmd {
	case CmdCreateAI:
		if e.ai == nil {
			e.render(ctx, s, e.errorCard(e.msg.AIDisabled, CmdUnknown, ""))
			return
		}
		s.Draft.Method = session.MethodAI
		e.goTo(ctx, s, session.StepAISubject)

	case CmdCreateManual:
		s.Draft.Method = session.MethodManual
		e.goTo(ctx, s, session.StepManualSubject)

	case CmdCreateTemplate:
		e.goTo(ctx, s, session.StepTemplateSelect)

	case CmdTemplate:
		t, ok := e.template(arg)
		if !ok {
			log.Printf("flow: unknown template %q", arg)
			return
		}
		s.Draft.Subject = t.Subject
		s.Draft.Content = t.Body
		s.Draft.Method = session.MethodTemplate
		e.goTo(ctx, s, session.StepEmailReady)

	case CmdTone:
		if s.Step != session.StepAITone {
			return
		}
		s.Draft.Tone = arg
		e.compose(ctx, s, true)

	case CmdRegenerate:
		if s.Draft.Method != session.MethodAI || s.Step != session.StepEmailReady {
			return
		}
		e.compose(ctx, s, false)

	case CmdEditEmail:
		e.goTo(ctx, s, session.StepEditingEmail)

	case CmdAddAttachment:
		s.SetStep(session.StepWaitingAttachment)
		e.render(ctx, s, e.attachPromptCard(s))

	case CmdSetRecipients:
		e.goTo(ctx, s, session.StepChoosingRecipients)

	case CmdRecipientsExcel:
		e.goTo(ctx, s, session.StepWaitingExcel)

	case CmdRecipientsManual:
		e.goTo(ctx, s, session.StepManualRecipients)

	case CmdConfirmRecipients:
		if s.Step != session.StepConfirmRecipients || len(s.Draft.PendingRecipients) == 0 {
			return
		}
		s.Draft.Recipients = append([]string(nil), s.Draft.PendingRecipients...)
		e.goTo(ctx, s, session.StepReadyToSend)

	case CmdSendEmail:
		if s.Step != session.StepReadyToSend || len(s.Draft.Recipients) == 0 {
			return
		}
		e.send(ctx, s, ev.Platform)

	case CmdBack:
		e.back(ctx, s)

	case CmdMainMenu:
		e.mainMenu(ctx, s)

	case CmdUnknown:
		log.Printf("flow: ignoring unknown payload %q from %s", ev.Payload, s.UserID)
	}
}

func (e *Engine) template(key string) (Template, bool) {
	for _, t := range e.templates {
		if t.Key == key {
			return t, true
		}
	}
	return Template{}, false
}

// compose asks the model for a body using the stored subject, brief and
// tone. A failure while choosing the tone returns to the root menu after the
// menu delay; a failed regeneration keeps the current draft.
func (e *Engine) compose(ctx context.Context, s *session.Session, fromTone bool) {
	if e.ai == nil {
		e.render(ctx, s, e.errorCard(e.msg.AIDisabled, CmdUnknown, ""))
		return
	}
	e.render(ctx, s, notice(e.msg.AIGenerating))

	tone := s.Draft.Tone
	if tone == "" {
		tone = ToneProfessional
	}
	prompt := ai.BuildPrompt(e.locale, ai.Request{
		Subject: s.Draft.Subject,
		Brief:   s.Draft.Brief,
		Tone:    e.msg.ToneNames[tone],
	})
	content, err := e.ai.Generate(ctx, prompt)
	if err != nil {
		log.Printf("flow: generate for %s: %v", s.UserID, err)
		text := e.msg.AIFailed
		if errors.Is(err, ai.ErrDisabled) {
			text = e.msg.AIDisabled
		}
		if fromTone {
			e.render(ctx, s, e.errorCard(text, CmdUnknown, ""))
			e.scheduleRootMenu(ctx, s)
			return
		}
		e.render(ctx, s, e.errorCard(text, CmdRegenerate, e.msg.BtnRegenerate))
		return
	}
	s.Draft.Content = content
	s.Draft.Method = session.MethodAI
	s.SetStep(session.StepEmailReady)
	e.render(ctx, s, e.previewCard(s))
}

// send delivers the draft. On success the draft is dropped and the root menu
// follows after the menu delay; on failure the user stays on the final
// preview step and may retry.
func (e *Engine) send(ctx context.Context, s *session.Session, platform string) {
	if e.mail == nil {
		e.render(ctx, s, e.errorCard(e.msg.MailDisabled, CmdUnknown, ""))
		return
	}
	e.render(ctx, s, notice(e.msg.Sending))

	email := draft.Build(s.Draft, e.footer)
	msg := &mailer.Message{
		From:    e.from,
		To:      email.Recipients,
		Subject: email.Subject,
		Body:    email.Body,
	}
	for _, a := range email.Attachments {
		msg.Attachments = append(msg.Attachments, mailer.Attachment{Name: a.Name, MIMEType: a.MIMEType, Data: a.Content})
	}

	transport, err := e.mail.Send(ctx, msg)
	e.record(ctx, s, platform, email, transport, err)
	if err != nil {
		log.Printf("flow: send for %s: %v", s.UserID, err)
		e.render(ctx, s, e.errorCard(e.msg.SendFailed, CmdSendEmail, e.msg.BtnSend))
		return
	}
	fmt.Fprintf(e.out, "flow: %s sent %q to %d recipient(s) via %s\n", s.UserID, email.Subject, len(email.Recipients), transport)

	e.render(ctx, s, notice(fmt.Sprintf(e.msg.Sent, e.listAddresses(email.Recipients, ", "))))
	s.Reset(session.StepIdle)
	e.scheduleRootMenu(ctx, s)
}

func (e *Engine) record(ctx context.Context, s *session.Session, platform string, email draft.Email, transport string, sendErr error) {
	if e.deliveries == nil {
		return
	}
	d := &models.Delivery{
		Platform:    platform,
		UserID:      s.UserID,
		Subject:     email.Subject,
		Method:      string(s.Draft.Method),
		Recipients:  len(email.Recipients),
		Attachments: len(email.Attachments),
		Transport:   transport,
		Status:      models.DeliverySent,
	}
	if sendErr != nil {
		d.Status = models.DeliveryFailed
		d.Error = sendErr.Error()
	}
	if err := e.deliveries.Record(ctx, d); err != nil {
		log.Printf("flow: record delivery: %v", err)
	}
}

func (e *Engine) handleFile(ctx context.Context, s *session.Session, ev telegraph.InboundEvent) {
	if ev.File == nil {
		return
	}
	switch s.Step {
	case session.StepWaitingAttachment:
		e.attach(ctx, s, *ev.File)
	case session.StepWaitingExcel:
		e.importRecipients(ctx, s, *ev.File)
	default:
		e.render(ctx, s, e.prompt(e.msg.AttachHint))
	}
}

// now is overridden in tests.
var now = time.Now

// attach downloads an upload into the draft. The step does not change so
// several files can be sent in a row.
func (e *Engine) attach(ctx context.Context, s *session.Session, ref telegraph.FileRef) {
	e.render(ctx, s, notice(e.msg.AttachProcessing))
	f, err := e.files.Fetch(ctx, ref)
	if err != nil {
		log.Printf("flow: fetch attachment for %s: %v", s.UserID, err)
		e.render(ctx, s, e.prompt(e.fetchError(err)))
		return
	}

	name := ref.Name
	if name == "" {
		name = f.Name
	}
	if name == "" {
		name = fmt.Sprintf("file_%d", now().Unix())
	}
	mimeType := ref.MIMEType
	if mimeType == "" {
		mimeType = f.MIMEType
	}
	if mimeType == "" {
		mimeType = draft.InferMIMEType(name)
	}
	s.Draft.Attachments = append(s.Draft.Attachments, session.Attachment{Name: name, Content: f.Data, MIMEType: mimeType})
	s.Touch()
	e.render(ctx, s, e.previewCard(s))
}

// importRecipients reads addresses from the first column of a spreadsheet
// and asks the user to confirm them.
func (e *Engine) importRecipients(ctx context.Context, s *session.Session, ref telegraph.FileRef) {
	e.render(ctx, s, notice(e.msg.ExcelProcessing))
	f, err := e.files.Fetch(ctx, ref)
	if err != nil {
		log.Printf("flow: fetch spreadsheet for %s: %v", s.UserID, err)
		e.render(ctx, s, e.prompt(e.fetchError(err)))
		return
	}
	name := ref.Name
	if name == "" {
		name = f.Name
	}
	rows, err := sheet.Rows(name, f.Data)
	if err != nil {
		log.Printf("flow: read spreadsheet %q for %s: %v", name, s.UserID, err)
		e.render(ctx, s, e.prompt(e.msg.ExcelUnreadable))
		return
	}
	recipients := sheet.Recipients(rows)
	if len(recipients) == 0 {
		e.render(ctx, s, e.prompt(e.msg.ExcelNoAddresses))
		return
	}
	s.Draft.PendingRecipients = recipients
	e.goTo(ctx, s, session.StepConfirmRecipients)
}

func (e *Engine) fetchError(err error) string {
	if errors.Is(err, telegraph.ErrFileTooLarge) {
		return e.msg.FileTooLarge
	}
	return e.msg.AttachFailed
}
