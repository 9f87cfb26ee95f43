// Package draft turns the data collected during a conversation into the email
// that is previewed and sent. Everything here is pure: no I/O, no session
// mutation.
package draft

import (
	"strings"

	"github.com/zulandar/courier/internal/session"
)

// Email is the outgoing message derived from a session draft.
type Email struct {
	Subject     string
	Body        string
	Recipients  []string
	Attachments []session.Attachment
}

// Build projects d into an Email. The footer is applied to the stored content,
// never to a previously footed value, so preview and send always agree.
func Build(d session.Draft, footer string) Email {
	recipients := make([]string, len(d.Recipients))
	copy(recipients, d.Recipients)
	attachments := make([]session.Attachment, len(d.Attachments))
	copy(attachments, d.Attachments)
	return Email{
		Subject:     d.Subject,
		Body:        ApplyFooter(d.Content, footer),
		Recipients:  recipients,
		Attachments: attachments,
	}
}

// ApplyFooter appends footer to body, separated by a blank line. An empty body
// yields the footer alone. A body that already ends with the footer is
// returned unchanged.
func ApplyFooter(body, footer string) string {
	if footer == "" {
		return body
	}
	if strings.TrimSpace(body) == "" {
		return footer
	}
	if strings.HasSuffix(body, "\n\n"+footer) || body == footer {
		return body
	}
	if strings.HasSuffix(body, "\n") {
		return body + "\n" + footer
	}
	return body + "\n\n" + footer
}

// ParseRecipients splits text on line breaks, trims every line and drops the
// blank ones.
func ParseRecipients(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
