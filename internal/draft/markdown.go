package draft

import "strings"

var (
	markdownEscaper   = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)
	markdownUnescaper = strings.NewReplacer(`\_`, `_`, `\*`, `*`, "\\`", "`", `\[`, `[`)
)

// EscapeMarkdown backslash-escapes the characters that carry meaning in chat
// markdown. Use it on display text only; stored draft values stay raw.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// UnescapeMarkdown reverses EscapeMarkdown.
func UnescapeMarkdown(s string) string {
	return markdownUnescaper.Replace(s)
}
