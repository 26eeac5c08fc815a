package ingest

import (
	"regexp"
	"unicode/utf8"
)

const previewRunes = 48

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// logPreview shortens a transcript line for debug logs and masks contact
// details and card numbers. The stored line is never altered.
func logPreview(text string) string {
	out := emailPattern.ReplaceAllString(text, "[email]")
	// Cards before phones: a card number also matches the phone pattern.
	out = cardPattern.ReplaceAllString(out, "[card]")
	out = phonePattern.ReplaceAllString(out, "[phone]")

	if utf8.RuneCountInString(out) <= previewRunes {
		return out
	}
	runes := []rune(out)
	return string(runes[:previewRunes]) + "…"
}
