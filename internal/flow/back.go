package flow

import (
	"context"
	"log"

	"github.com/zulandar/courier/internal/session"
	"github.com/zulandar/courier/internal/telegraph"
)

// stepCards maps every stored step to the card that represents it. History
// keeps step names only, so steps whose prompt depends on collected data
// (previews, the edit prompt, the recipient confirmation) rebuild it from the
// current draft.
var stepCards = map[session.Step]func(*Engine, *session.Session) telegraph.Card{
	session.StepIdle:               (*Engine).rootCard,
	session.StepChoosingMethod:     (*Engine).rootCard,
	session.StepAISubject:          (*Engine).aiSubjectCard,
	session.StepAIContent:          (*Engine).aiContentCard,
	session.StepAITone:             (*Engine).toneCard,
	session.StepManualSubject:      (*Engine).manualSubjectCard,
	session.StepManualContent:      (*Engine).manualContentCard,
	session.StepTemplateSelect:     (*Engine).templateCard,
	session.StepEmailReady:         (*Engine).previewCard,
	session.StepEditingEmail:       (*Engine).editCard,
	session.StepWaitingAttachment:  (*Engine).attachmentStepCard,
	session.StepChoosingRecipients: (*Engine).recipientsCard,
	session.StepWaitingExcel:       (*Engine).excelCard,
	session.StepManualRecipients:   (*Engine).manualRecipientsCard,
	session.StepConfirmRecipients:  (*Engine).confirmCard,
	session.StepReadyToSend:        (*Engine).finalCard,
}

// cardFor returns the card of the session's current step.
func (e *Engine) cardFor(s *session.Session) telegraph.Card {
	if render, ok := stepCards[s.Step]; ok {
		return render(e, s)
	}
	log.Printf("flow: no card for step %q, showing root menu", s.Step)
	return e.rootCard(s)
}

// back pops the history and re-renders the step found there. Leaving the
// manual subject prompt that was opened from the template list returns to
// the root menu instead of the list.
func (e *Engine) back(ctx context.Context, s *session.Session) {
	if prev, ok := s.Previous(); ok && s.Step == session.StepManualSubject && prev == session.StepTemplateSelect {
		e.mainMenu(ctx, s)
		return
	}
	if _, ok := s.Back(); !ok {
		e.mainMenu(ctx, s)
		return
	}
	e.render(ctx, s, e.cardFor(s))
}

// mainMenu drops the draft and shows the root menu.
func (e *Engine) mainMenu(ctx context.Context, s *session.Session) {
	s.Reset(session.StepChoosingMethod)
	e.render(ctx, s, e.rootCard(s))
}
