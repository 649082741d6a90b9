// Package types defines the records that flow through the ingestion and classification pipeline.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceKind identifies which connector produced a record.
type SourceKind string

const (
	// SourceAPIA is a REST API paged with an opaque cursor token.
	SourceAPIA SourceKind = "api_a"
	// SourceHTMLB is a paginated HTML results table driven through a browser.
	SourceHTMLB SourceKind = "html_b"
	// SourceSearchC is a page-numbered search API.
	SourceSearchC SourceKind = "search_c"
	// SourceRSS is a syndication feed.
	SourceRSS SourceKind = "rss"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceAPIA, SourceHTMLB, SourceSearchC, SourceRSS:
		return true
	}
	return false
}

// Candidate is an ephemeral record produced by a source connector, before deduplication.
type Candidate struct {
	NaturalKey          string          `json:"natural_key"`
	Source              SourceKind      `json:"source"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Organization        string          `json:"organization,omitempty"`
	Country             string          `json:"country,omitempty"`
	URL                 string          `json:"url,omitempty"`
	PublicationDate     *time.Time      `json:"publication_date,omitempty"`
	Deadline            *time.Time      `json:"deadline,omitempty"`
	ClassificationCodes []string        `json:"classification_codes,omitempty"`
	SourceTags          []string        `json:"source_tags,omitempty"`
	Raw                 json.RawMessage `json:"raw,omitempty"`
}

// ResolveKey picks the best available natural key: the detail URL, else the title,
// else a positional fallback built from scope (the source name), the index and a
// digest of the item's content. The boolean reports whether the positional fallback
// was used so the caller can log a data-quality warning.
func (c *Candidate) ResolveKey(scope string, index int) (string, bool) {
	switch {
	case c.NaturalKey != "":
		return c.NaturalKey, false
	case c.URL != "":
		c.NaturalKey = c.URL
	case c.Title != "":
		c.NaturalKey = c.Title
	default:
		c.NaturalKey = fmt.Sprintf("%s#%d:%s", scope, index, c.digest())
		return c.NaturalKey, true
	}
	return c.NaturalKey, false
}

// digest fingerprints the raw payload, or the descriptive fields when there is none.
func (c *Candidate) digest() string {
	h := sha256.New()
	if len(c.Raw) > 0 {
		h.Write(c.Raw)
	} else {
		for _, s := range []string{c.Description, c.Organization, c.Country, strings.Join(c.ClassificationCodes, ",")} {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// AddTags merges tags into the candidate's tag set.
func (c *Candidate) AddTags(tags ...string) {
	c.SourceTags = MergeTags(c.SourceTags, tags)
}

// MergeTags returns the sorted union of a and b without empty entries.
func MergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
