// Package names normalizes person names for lookups.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Fold normalizes a name for comparison: lowercase, no diacritics, dashes
// as spaces and single spaces between words.
func Fold(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Full joins first and last name.
func Full(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// Matches reports whether every word of query is a prefix of some word of
// the person's full name. An empty query matches nothing.
func Matches(query, first, last string) bool {
	terms := strings.Fields(Fold(query))
	if len(terms) == 0 {
		return false
	}
	words := strings.Fields(Fold(Full(first, last)))
	for _, term := range terms {
		found := false
		for _, w := range words {
			if strings.HasPrefix(w, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
