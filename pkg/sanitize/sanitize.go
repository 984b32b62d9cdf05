// Package sanitize cleans listing text before it leaves the process.
package sanitize

import "strings"

// Text replaces every rune outside printable ASCII and the Cyrillic block
// (U+0400..U+04FF) with a single space. The characters = + * / \ are
// replaced as well since they confuse the extraction prompt.
// Retained runes keep their relative order.
func Text(s string) string {
	return strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return ' '
	}, s)
}

func allowed(r rune) bool {
	switch r {
	case '=', '+', '*', '/', '\\':
		return false
	}
	if r >= 0x20 && r <= 0x7E {
		return true
	}
	return r >= 0x0400 && r <= 0x04FF
}
