// Package sanitize prepares user supplied content before it reaches validation.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// Sanitizer strips markup and control characters and normalizes text to NFC.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a sanitizer that removes every HTML element.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text returns content ready for the length check. The result may be empty.
func (s *Sanitizer) Text(raw string) string {
	stripped := s.policy.Sanitize(raw)
	// the strict policy entity-encodes text; message bodies are stored as plain text
	stripped = html.UnescapeString(stripped)
	stripped = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	return strings.TrimSpace(norm.NFC.String(stripped))
}
