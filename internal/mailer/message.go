// Package mailer delivers composed emails. A Chain tries an ordered list of
// senders (SMTP first, then HTTP APIs) and stops at the first success.
package mailer

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Message is an outgoing email.
type Message struct {
	From        string // "Name <addr>" or bare address
	To          []string
	Subject     string
	Body        string // plain text
	Attachments []Attachment
}

// Validate checks that the message can be delivered.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("mailer: message: from is required")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("mailer: message: at least one recipient is required")
	}
	return nil
}

// now is overridden in tests.
var now = time.Now

// Build renders the message as RFC 5322 bytes. Non-ASCII subjects and names
// are encoded per RFC 2047; attachments are base64 parts of a
// multipart/mixed body.
func (m *Message) Build() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return nil, fmt.Errorf("mailer: message: parse from %q: %w", m.From, err)
	}
	to := make([]*gomail.Address, 0, len(m.To))
	for _, addr := range m.To {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("mailer: message: parse recipient %q: %w", addr, err)
		}
		to = append(to, (*gomail.Address)(a))
	}

	var h gomail.Header
	h.SetDate(now())
	h.SetAddressList("From", []*gomail.Address{(*gomail.Address)(from)})
	h.SetAddressList("To", to)
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("mailer: message: message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("mailer: message: create writer: %w", err)
	}

	var th gomail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("mailer: message: body part: %w", err)
	}
	if _, err := io.WriteString(tw, m.Body); err != nil {
		return nil, fmt.Errorf("mailer: message: write body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("mailer: message: close body: %w", err)
	}

	for _, att := range m.Attachments {
		var ah gomail.AttachmentHeader
		ah.SetFilename(att.Name)
		contentType := att.MIMEType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)
		ah.Set("Content-Transfer-Encoding", "base64")
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("mailer: message: attachment %s: %w", att.Name, err)
		}
		if _, err := aw.Write(att.Data); err != nil {
			return nil, fmt.Errorf("mailer: message: write attachment %s: %w", att.Name, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("mailer: message: close attachment %s: %w", att.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mailer: message: close: %w", err)
	}
	return buf.Bytes(), nil
}

// envelopeAddrs returns the bare addresses for the SMTP envelope.
func envelopeAddrs(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("mailer: parse address %q: %w", s, err)
		}
		out = append(out, a.Address)
	}
	return out, nil
}
