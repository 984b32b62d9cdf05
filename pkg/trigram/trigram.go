// Package trigram computes word trigram similarity with the same rules as
// PostgreSQL's pg_trgm extension, so the embedded store can rank fuzzy name
// matches the way the Postgres store does.
package trigram

import (
	"strings"
	"unicode"
)

// Set returns the distinct trigrams of s. Each alphanumeric word is
// lower-cased and padded with two leading blanks and one trailing blank.
func Set(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

// Similarity returns |A∩B| / |A∪B| over the trigram sets of a and b.
// Two strings without any trigrams have similarity 0.
func Similarity(a, b string) float64 {
	sa, sb := Set(a), Set(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	common := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			common++
		}
	}
	union := len(sa) + len(sb) - common
	return float64(common) / float64(union)
}
