// Package ai drafts email bodies with a chat-completion model.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned when no API key is configured. Callers treat it as
// a disabled feature, not a failure.
var ErrDisabled = errors.New("ai: generator not configured")

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request is what the operator asked for.
type Request struct {
	Subject string
	Brief   string
	Tone    string // localized tone label, e.g. "formal"
}

// prompts holds the instruction template per locale. Placeholders are
// subject, brief and tone in that order.
var prompts = map[string]string{
	"en": "Write a short, clear email in English.\n" +
		"Subject: %q\n" +
		"Request: %q\n" +
		"Tone: %s\n" +
		"Requirements: professional, greeting + body; do not add a signature or footer.",
	"tr": "Türkçe kısa ve net bir e-posta yaz.\n" +
		"Konu: %q\n" +
		"İstek: %q\n" +
		"Ton: %s\n" +
		"Gereksinimler: profesyonel, selamlama + gövde; imza/alt bilgi ekleme.",
}

// BuildPrompt renders the instruction sent to the model. Unknown locales fall
// back to English. The footer is appended later, so the model is told not to
// write one.
func BuildPrompt(locale string, r Request) string {
	tmpl, ok := prompts[locale]
	if !ok {
		tmpl = prompts["en"]
	}
	return fmt.Sprintf(tmpl, r.Subject, r.Brief, r.Tone)
}
