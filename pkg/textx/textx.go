// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Slug folds s into the username alphabet [a-z0-9._-]. Accents are dropped,
// whitespace becomes '_' and runs of separators collapse. The result is cut to maxLen.
func Slug(s string, maxLen int) string {
	var b strings.Builder
	lastSep := true
	for _, r := range norm.NFKD.String(strings.ToLower(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r == '.' || r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastSep {
				if unicode.IsSpace(r) {
					r = '_'
				}
				b.WriteRune(r)
				lastSep = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "._-")
	if maxLen > 0 && len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "._-")
	}
	return out
}
