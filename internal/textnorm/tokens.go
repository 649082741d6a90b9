package textnorm

import (
	"strings"
	"unicode"
)

// minTokenLength drops single characters, which carry no signal for term weighting.
const minTokenLength = 2

// stopWords covers the languages procurement notices are most often published in.
var stopWords = map[string]struct{}{
	// en
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {}, "this": {}, "are": {},
	"was": {}, "will": {}, "into": {}, "its": {}, "our": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "by": {}, "an": {}, "or": {}, "as": {}, "at": {}, "be": {}, "is": {},
	// fr
	"les": {}, "des": {}, "une": {}, "pour": {}, "dans": {}, "sur": {}, "par": {}, "aux": {},
	"du": {}, "de": {}, "la": {}, "le": {}, "et": {}, "en": {}, "un": {},
	// es / pt
	"los": {}, "las": {}, "del": {}, "para": {}, "con": {}, "por": {}, "el": {}, "y": {},
	"os": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "em": {}, "com": {},
}

// Tokens splits text into folded alphanumeric terms, dropping stop words and
// terms shorter than two characters. When that would drop every term, the
// unfiltered terms are returned so short texts still have a representation.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return fields
	}
	return out
}
