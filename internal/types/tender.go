package types

import (
	"encoding/json"
	"time"
)

// Tender is the persisted unit of record. It is created on first sighting and
// updated, never re-created, on later sightings of the same ID.
type Tender struct {
	ID                  string          `json:"id"`
	NaturalKey          string          `json:"natural_key"`
	Source              SourceKind      `json:"source"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Organization        string          `json:"organization,omitempty"`
	Country             string          `json:"country,omitempty"`
	URL                 string          `json:"url,omitempty"`
	ClassificationCodes []string        `json:"classification_codes,omitempty"`
	PublicationDate     *time.Time      `json:"publication_date,omitempty"`
	Deadline            *time.Time      `json:"deadline,omitempty"`
	SourceTags          []string        `json:"source_tags,omitempty"`
	Classification      *Verdict        `json:"classification,omitempty"`
	RawPayload          json.RawMessage `json:"raw_payload,omitempty"`
	FirstSeenAt         time.Time       `json:"first_seen_at"`
	LastSeenAt          time.Time       `json:"last_seen_at"`
}

// NewTender builds a Tender from a candidate under the given stable id.
func NewTender(id string, c Candidate, seenAt time.Time) *Tender {
	return &Tender{
		ID:                  id,
		NaturalKey:          c.NaturalKey,
		Source:              c.Source,
		Title:               c.Title,
		Description:         c.Description,
		Organization:        c.Organization,
		Country:             c.Country,
		URL:                 c.URL,
		ClassificationCodes: MergeTags(nil, c.ClassificationCodes),
		PublicationDate:     c.PublicationDate,
		Deadline:            c.Deadline,
		SourceTags:          MergeTags(nil, c.SourceTags),
		RawPayload:          c.Raw,
		FirstSeenAt:         seenAt,
		LastSeenAt:          seenAt,
	}
}

// Absorb merges a later sighting of the same item. Tags and codes are unioned;
// scalar fields are only filled when still empty, so a later duplicate never
// demotes an earlier extraction.
func (t *Tender) Absorb(c Candidate, seenAt time.Time) {
	t.SourceTags = MergeTags(t.SourceTags, c.SourceTags)
	t.ClassificationCodes = MergeTags(t.ClassificationCodes, c.ClassificationCodes)
	fillString(&t.Title, c.Title)
	fillString(&t.Description, c.Description)
	fillString(&t.Organization, c.Organization)
	fillString(&t.Country, c.Country)
	fillString(&t.URL, c.URL)
	if t.PublicationDate == nil {
		t.PublicationDate = c.PublicationDate
	}
	if t.Deadline == nil {
		t.Deadline = c.Deadline
	}
	if len(t.RawPayload) == 0 {
		t.RawPayload = c.Raw
	}
	if seenAt.After(t.LastSeenAt) {
		t.LastSeenAt = seenAt
	}
}

// Text returns the title and description joined for classification.
func (t *Tender) Text() string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + " " + t.Description
}

func fillString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
