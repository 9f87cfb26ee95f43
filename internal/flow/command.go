package flow

import "strings"

// Command is a button press, decoded from the opaque payload the button was
// created with. The set is closed; unknown payloads decode to CmdUnknown.
type Command int

const (
	CmdUnknown Command = iota
	CmdCreateAI
	CmdCreateManual
	CmdCreateTemplate
	CmdTemplate // carries the template key as argument
	CmdTone     // carries the tone key as argument
	CmdEditEmail
	CmdRegenerate
	CmdAddAttachment
	CmdSetRecipients
	CmdRecipientsExcel
	CmdRecipientsManual
	CmdConfirmRecipients
	CmdSendEmail
	CmdBack
	CmdMainMenu
)

// Tone keys. The label handed to the model is localized.
const (
	ToneFormal       = "formal"
	ToneFriendly     = "friendly"
	ToneProfessional = "professional"
	ToneCasual       = "casual"
)

// Tones lists the tone keys in button order.
var Tones = []string{ToneFormal, ToneFriendly, ToneProfessional, ToneCasual}

const (
	templatePrefix = "template:"
	tonePrefix     = "tone-"
)

var payloads = map[string]Command{
	"create-ai":          CmdCreateAI,
	"create-manual":      CmdCreateManual,
	"create-template":    CmdCreateTemplate,
	"edit-email":         CmdEditEmail,
	"regenerate-email":   CmdRegenerate,
	"add-attachment":     CmdAddAttachment,
	"set-recipients":     CmdSetRecipients,
	"recipients-excel":   CmdRecipientsExcel,
	"recipients-manual":  CmdRecipientsManual,
	"confirm-recipients": CmdConfirmRecipients,
	"send-email":         CmdSendEmail,
	"back":               CmdBack,
	"main-menu":          CmdMainMenu,
}

// ParseCommand decodes a button payload. The second result is the argument
// of CmdTemplate and CmdTone.
func ParseCommand(payload string) (Command, string) {
	payload = strings.TrimSpace(payload)
	if c, ok := payloads[payload]; ok {
		return c, ""
	}
	if key, ok := strings.CutPrefix(payload, templatePrefix); ok && key != "" {
		return CmdTemplate, key
	}
	if tone, ok := strings.CutPrefix(payload, tonePrefix); ok && isTone(tone) {
		return CmdTone, tone
	}
	return CmdUnknown, ""
}

// Payload encodes c with its argument. It is the inverse of ParseCommand.
func (c Command) Payload(arg string) string {
	switch c {
	case CmdTemplate:
		return templatePrefix + arg
	case CmdTone:
		return tonePrefix + arg
	}
	for p, cmd := range payloads {
		if cmd == c {
			return p
		}
	}
	return ""
}

func (c Command) String() string {
	switch c {
	case CmdTemplate:
		return "template"
	case CmdTone:
		return "tone"
	case CmdUnknown:
		return "unknown"
	}
	if p := c.Payload(""); p != "" {
		return p
	}
	return "unknown"
}

func isTone(s string) bool {
	for _, t := range Tones {
		if t == s {
			return true
		}
	}
	return false
}
