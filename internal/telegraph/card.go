package telegraph

// Format selects how a card's text is interpreted by the platform.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

// Button is an inline control. Payload is delivered back verbatim in the
// InboundEvent when the button is pressed.
type Button struct {
	Label   string
	Payload string
}

// Card is the content of the single live message a session keeps in the chat.
type Card struct {
	Text    string
	Format  Format
	Buttons [][]Button // rows of buttons
}

// Row is a convenience for building a button row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Payloads returns every button payload on the card in row order.
func (c Card) Payloads() []string {
	var out []string
	for _, row := range c.Buttons {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}

// HasPayload reports whether the card carries a button with payload p.
func (c Card) HasPayload(p string) bool {
	for _, row := range c.Buttons {
		for _, b := range row {
			if b.Payload == p {
				return true
			}
		}
	}
	return false
}
