// Package filter decides whether a candidate is worth keeping based on keyword and
// category allow and deny lists.
package filter

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

// minStemLength is the shortest term that has a trailing "s" trimmed.
const minStemLength = 5

// Config lists the filter terms. Terms are matched as substrings of the folded
// title, description and organization.
type Config struct {
	Include       []string `yaml:"include" json:"include,omitempty"`
	Exclude       []string `yaml:"exclude" json:"exclude,omitempty"`
	CategoryCodes []string `yaml:"category_codes" json:"category_codes,omitempty"`
}

// Accepts reports whether c passes the lists: at least one include term is present
// (or include is empty) and no exclude term is present. Exclude wins.
func Accepts(c types.Candidate, include, exclude []string) bool {
	text := candidateText(c)
	for _, term := range exclude {
		if t := textnorm.Fold(term); t != "" && strings.Contains(text, t) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, term := range include {
		if t := Stem(textnorm.Fold(term)); t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// Stem reduces a folded include term so that plural and adjective forms meet:
// "economics" matches "economic study". Terms shorter than five characters are kept.
func Stem(term string) string {
	if len([]rune(term)) >= minStemLength && strings.HasSuffix(term, "s") {
		return strings.TrimSuffix(term, "s")
	}
	return term
}

func candidateText(c types.Candidate) string {
	return textnorm.Join(c.Title, c.Description, c.Organization)
}

// Filter is the compiled form of Config, backed by Aho-Corasick automata.
// It is safe for concurrent use.
type Filter struct {
	// the matchers keep per-search state
	mu           sync.Mutex
	include      []string
	includeTerms []string
	exclude      []string
	includeM     *ahocorasick.Matcher
	excludeM     *ahocorasick.Matcher
	categories   []category
}

type category struct {
	code   string
	prefix string
}

// New compiles cfg.
func New(cfg Config) *Filter {
	f := &Filter{}
	for _, term := range cfg.Include {
		folded := textnorm.Fold(term)
		if folded == "" {
			continue
		}
		f.include = append(f.include, Stem(folded))
		f.includeTerms = append(f.includeTerms, folded)
	}
	for _, term := range cfg.Exclude {
		if folded := textnorm.Fold(term); folded != "" {
			f.exclude = append(f.exclude, folded)
		}
	}
	if len(f.include) > 0 {
		f.includeM = ahocorasick.NewStringMatcher(f.include)
	}
	if len(f.exclude) > 0 {
		f.excludeM = ahocorasick.NewStringMatcher(f.exclude)
	}
	for _, code := range cfg.CategoryCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		f.categories = append(f.categories, category{code: code, prefix: CategoryPrefix(code)})
	}
	return f
}

// CategoryPrefix returns the significant prefix of a CPV code: the check digit is
// dropped and trailing zeros trimmed, so "79300000-7" covers every "793..." code.
func CategoryPrefix(code string) string {
	code, _, _ = strings.Cut(strings.TrimSpace(code), "-")
	trimmed := strings.TrimRight(code, "0")
	if trimmed == "" {
		return code
	}
	return trimmed
}

// Accepts applies the filter to c and records what matched in its tags as
// "kw:<term>" and "cpv:<code>". A candidate passes when it has no excluded term and
// either include is empty, an include term matches, or one of its codes falls under
// an allowed category.
func (f *Filter) Accepts(c *types.Candidate) bool {
	text := []byte(candidateText(*c))
	excluded, hits := f.match(text)
	if excluded {
		return false
	}

	var tags []string
	for _, idx := range hits {
		if idx < len(f.includeTerms) {
			tags = append(tags, "kw:"+f.includeTerms[idx])
		}
	}
	for _, cat := range f.categories {
		if matchesCategory(c.ClassificationCodes, cat.prefix) {
			tags = append(tags, "cpv:"+cat.code)
		}
	}
	c.AddTags(tags...)

	if len(f.include) == 0 && len(f.categories) == 0 {
		return true
	}
	return len(tags) > 0
}

func (f *Filter) match(text []byte) (bool, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.excludeM != nil && len(f.excludeM.Match(text)) > 0 {
		return true, nil
	}
	if f.includeM == nil {
		return false, nil
	}
	return false, f.includeM.Match(text)
}

// Empty reports whether the filter accepts everything.
func (f *Filter) Empty() bool {
	return len(f.include) == 0 && len(f.exclude) == 0 && len(f.categories) == 0
}

func matchesCategory(codes []string, prefix string) bool {
	for _, code := range codes {
		if strings.HasPrefix(strings.TrimSpace(code), prefix) {
			return true
		}
	}
	return false
}
