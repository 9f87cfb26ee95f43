package flow

import (
	"fmt"
	"strings"

	"github.com/zulandar/courier/internal/draft"
	"github.com/zulandar/courier/internal/session"
	"github.com/zulandar/courier/internal/telegraph"
)

// maxListed caps how many addresses a card lists before summarizing.
const maxListed = 50

func (e *Engine) button(label string, c Command, arg string) telegraph.Button {
	return telegraph.Button{Label: label, Payload: c.Payload(arg)}
}

func (e *Engine) navRow() []telegraph.Button {
	return telegraph.Row(
		e.button(e.msg.BtnBack, CmdBack, ""),
		e.button(e.msg.BtnMainMenu, CmdMainMenu, ""),
	)
}

// prompt is a plain card with the navigation row.
func (e *Engine) prompt(text string) telegraph.Card {
	return telegraph.Card{Text: text, Buttons: [][]telegraph.Button{e.navRow()}}
}

// notice is a card without buttons, shown while work is in progress.
func notice(text string) telegraph.Card {
	return telegraph.Card{Text: text}
}

// errorCard keeps the user on the current step with a way out and, when
// retry is not CmdUnknown, a button to try again.
func (e *Engine) errorCard(text string, retry Command, retryLabel string) telegraph.Card {
	c := telegraph.Card{Text: text}
	if retry != CmdUnknown {
		c.Buttons = append(c.Buttons, telegraph.Row(e.button(retryLabel, retry, "")))
	}
	c.Buttons = append(c.Buttons, e.navRow())
	return c
}

func (e *Engine) rootCard(*session.Session) telegraph.Card {
	c := telegraph.Card{Text: e.msg.RootMenu}
	if e.ai != nil {
		c.Buttons = append(c.Buttons, telegraph.Row(e.button(e.msg.BtnAI, CmdCreateAI, "")))
	}
	c.Buttons = append(c.Buttons,
		telegraph.Row(e.button(e.msg.BtnManual, CmdCreateManual, "")),
		telegraph.Row(e.button(e.msg.BtnTemplates, CmdCreateTemplate, "")),
	)
	return c
}

func (e *Engine) aiSubjectCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.AISubjectPrompt)
}

func (e *Engine) aiContentCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.AIContentPrompt)
}

func (e *Engine) toneCard(*session.Session) telegraph.Card {
	b := func(tone string) telegraph.Button {
		return e.button(e.msg.ToneButtons[tone], CmdTone, tone)
	}
	return telegraph.Card{
		Text: e.msg.TonePrompt,
		Buttons: [][]telegraph.Button{
			telegraph.Row(b(ToneFormal), b(ToneFriendly)),
			telegraph.Row(b(ToneProfessional), b(ToneCasual)),
			e.navRow(),
		},
	}
}

func (e *Engine) manualSubjectCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.ManualSubjectPrompt)
}

func (e *Engine) manualContentCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.ManualContentPrompt)
}

func (e *Engine) templateCard(*session.Session) telegraph.Card {
	c := telegraph.Card{Text: e.msg.TemplatePrompt}
	for _, t := range e.templates {
		c.Buttons = append(c.Buttons, telegraph.Row(e.button(t.Label, CmdTemplate, t.Key)))
	}
	c.Buttons = append(c.Buttons,
		telegraph.Row(e.button(e.msg.BtnWriteManually, CmdCreateManual, "")),
		e.navRow(),
	)
	return c
}

// previewCard shows the email as it will be sent, footer included.
func (e *Engine) previewCard(s *session.Session) telegraph.Card {
	email := draft.Build(s.Draft, e.footer)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s %s\n\n%s\n%s",
		e.msg.PreviewTitle,
		e.msg.SubjectLabel, draft.EscapeMarkdown(email.Subject),
		e.msg.ContentLabel, draft.EscapeMarkdown(email.Body))
	e.writeAttachments(&b, s.Draft.Attachments)
	fmt.Fprintf(&b, "\n\n%s", e.msg.PreviewQuestion)

	c := telegraph.Card{Text: b.String(), Format: telegraph.FormatMarkdown}
	c.Buttons = append(c.Buttons, telegraph.Row(
		e.button(e.msg.BtnEdit, CmdEditEmail, ""),
		e.button(e.msg.BtnAttach, CmdAddAttachment, ""),
	))
	if s.Draft.Method == session.MethodAI && e.ai != nil {
		c.Buttons = append(c.Buttons, telegraph.Row(e.button(e.msg.BtnRegenerate, CmdRegenerate, "")))
	}
	c.Buttons = append(c.Buttons,
		telegraph.Row(e.button(e.msg.BtnRecipients, CmdSetRecipients, "")),
		e.navRow(),
	)
	return c
}

func (e *Engine) editCard(s *session.Session) telegraph.Card {
	return e.prompt(fmt.Sprintf(e.msg.EditPrompt, s.Draft.Content))
}

func (e *Engine) attachPromptCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.AttachPrompt)
}

// attachmentStepCard re-shows the preview once files were added, since that
// is what the user last saw in this step.
func (e *Engine) attachmentStepCard(s *session.Session) telegraph.Card {
	if len(s.Draft.Attachments) > 0 {
		return e.previewCard(s)
	}
	return e.attachPromptCard(s)
}

func (e *Engine) recipientsCard(*session.Session) telegraph.Card {
	return telegraph.Card{
		Text: e.msg.RecipientsPrompt,
		Buttons: [][]telegraph.Button{
			telegraph.Row(
				e.button(e.msg.BtnExcel, CmdRecipientsExcel, ""),
				e.button(e.msg.BtnManualRecipients, CmdRecipientsManual, ""),
			),
			e.navRow(),
		},
	}
}

func (e *Engine) excelCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.ExcelPrompt)
}

func (e *Engine) manualRecipientsCard(*session.Session) telegraph.Card {
	return e.prompt(e.msg.ManualRecipientsPrompt)
}

func (e *Engine) confirmCard(s *session.Session) telegraph.Card {
	list := e.listAddresses(s.Draft.PendingRecipients, "\n")
	return telegraph.Card{
		Text: fmt.Sprintf(e.msg.RecipientsFound, len(s.Draft.PendingRecipients), list),
		Buttons: [][]telegraph.Button{
			telegraph.Row(e.button(e.msg.BtnConfirm, CmdConfirmRecipients, "")),
			e.navRow(),
		},
	}
}

// finalCard is the last look at the email before it goes out.
func (e *Engine) finalCard(s *session.Session) telegraph.Card {
	email := draft.Build(s.Draft, e.footer)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s %s\n\n%s %s\n\n%s\n%s",
		e.msg.FinalTitle,
		e.msg.SubjectLabel, draft.EscapeMarkdown(email.Subject),
		e.msg.RecipientsLabel, draft.EscapeMarkdown(e.listAddresses(email.Recipients, ", ")),
		e.msg.ContentLabel, draft.EscapeMarkdown(email.Body))
	e.writeAttachments(&b, s.Draft.Attachments)
	fmt.Fprintf(&b, "\n\n%s", e.msg.FinalQuestion)
	return telegraph.Card{
		Text:   b.String(),
		Format: telegraph.FormatMarkdown,
		Buttons: [][]telegraph.Button{
			telegraph.Row(e.button(e.msg.BtnSend, CmdSendEmail, "")),
			e.navRow(),
		},
	}
}

func (e *Engine) writeAttachments(b *strings.Builder, atts []session.Attachment) {
	if len(atts) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n%s", e.msg.AttachmentsLabel)
	for i, a := range atts {
		fmt.Fprintf(b, "\n%d. %s", i+1, draft.EscapeMarkdown(a.Name))
	}
}

// listAddresses joins at most maxListed addresses and summarizes the rest.
func (e *Engine) listAddresses(addrs []string, sep string) string {
	if len(addrs) <= maxListed {
		return strings.Join(addrs, sep)
	}
	return strings.Join(addrs[:maxListed], sep) + sep + fmt.Sprintf(e.msg.MoreRecipients, len(addrs)-maxListed)
}
