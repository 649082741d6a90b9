// Package textnorm normalizes free text coming from procurement sources so that every
// downstream stage (dedup, filtering, similarity) works on the same representation.
package textnorm

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	folder      = cases.Fold()
)

// Clean strips HTML markup, decodes entities, drops control characters and collapses
// whitespace. Case and accents are preserved; use Fold for matching.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		// keep adjacent block elements from gluing words together
		s = stripPolicy.Sanitize(strings.ReplaceAll(s, "<", " <"))
	}
	s = html.UnescapeString(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' {
			return ' '
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return CollapseSpace(s)
}

// CollapseSpace replaces every run of whitespace with a single space and trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripAccents removes combining diacritical marks ("Économie" -> "Economie").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold produces the matching form of s: cleaned, accent-free and case-folded.
func Fold(s string) string {
	return folder.String(StripAccents(Clean(s)))
}

// Join folds and concatenates several text fields with a single separating space.
func Join(parts ...string) string {
	folded := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := Fold(p); f != "" {
			folded = append(folded, f)
		}
	}
	return strings.Join(folded, " ")
}
