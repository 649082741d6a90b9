package sources

import (
	"cmp"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

// FieldMap locates candidate fields inside one JSON result item using gjson paths.
// Empty paths leave the field unset.
type FieldMap struct {
	Key             string `yaml:"key" json:"key,omitempty"`
	Title           string `yaml:"title" json:"title,omitempty"`
	Description     string `yaml:"description" json:"description,omitempty"`
	Organization    string `yaml:"organization" json:"organization,omitempty"`
	Country         string `yaml:"country" json:"country,omitempty"`
	URL             string `yaml:"url" json:"url,omitempty"`
	PublicationDate string `yaml:"publication_date" json:"publication_date,omitempty"`
	Deadline        string `yaml:"deadline" json:"deadline,omitempty"`
	Codes           string `yaml:"codes" json:"codes,omitempty"`
	// URLTemplate builds the detail URL when no URL path is set; "{key}" is replaced
	// by the item's key.
	URLTemplate string `yaml:"url_template" json:"url_template,omitempty"`
}

// DefaultFieldMap matches a flat item with conventional field names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Key:             "id",
		Title:           "title",
		Description:     "description",
		Organization:    "buyer",
		Country:         "country",
		URL:             "url",
		PublicationDate: "publicationDate",
		Deadline:        "deadline",
		Codes:           "cpvCodes",
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"20060102",
}

// Candidate maps item onto a candidate for the given source kind.
func (m FieldMap) Candidate(kind types.SourceKind, item gjson.Result) types.Candidate {
	c := types.Candidate{
		Source:       kind,
		NaturalKey:   strings.TrimSpace(lookup(item, m.Key)),
		Title:        textnorm.Clean(lookup(item, m.Title)),
		Description:  textnorm.Clean(lookup(item, m.Description)),
		Organization: textnorm.Clean(lookup(item, m.Organization)),
		Country:      strings.ToUpper(strings.TrimSpace(lookup(item, m.Country))),
		URL:          strings.TrimSpace(lookup(item, m.URL)),
		Raw:          json.RawMessage(item.Raw),
	}
	if c.URL == "" && m.URLTemplate != "" && c.NaturalKey != "" {
		c.URL = strings.ReplaceAll(m.URLTemplate, "{key}", c.NaturalKey)
	}
	if c.NaturalKey == "" {
		// the positional fallback is left to the Pager, which knows the source name
		c.NaturalKey = cmp.Or(c.URL, c.Title)
	}
	c.PublicationDate = ParseDate(lookup(item, m.PublicationDate))
	c.Deadline = ParseDate(lookup(item, m.Deadline))
	if m.Codes != "" {
		for _, v := range item.Get(m.Codes).Array() {
			if code := strings.TrimSpace(v.String()); code != "" {
				c.ClassificationCodes = append(c.ClassificationCodes, code)
			}
		}
	}
	return c
}

func lookup(item gjson.Result, path string) string {
	if path == "" {
		return ""
	}
	return item.Get(path).String()
}

// ParseDate accepts the date layouts seen across sources. Unparseable or empty input
// yields nil rather than an error.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
