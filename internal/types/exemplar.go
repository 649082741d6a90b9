package types

import (
	"time"

	"github.com/google/uuid"
)

// ExemplarSource records how a positive exemplar entered the corpus.
type ExemplarSource string

const (
	// ExemplarManual was added by an operator.
	ExemplarManual ExemplarSource = "manual"
	// ExemplarPromoted was copied from a confirmed-relevant tender in the store.
	ExemplarPromoted ExemplarSource = "promoted_from_store"
)

// PositiveExemplar is a confirmed-relevant example used by the similarity tier.
type PositiveExemplar struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Confidence  float64        `json:"confidence"`
	Source      ExemplarSource `json:"source"`
	AddedAt     time.Time      `json:"added_at"`
}

// Text returns the exemplar's title and description joined for vectorization.
func (e PositiveExemplar) Text() string {
	if e.Description == "" {
		return e.Title
	}
	return e.Title + " " + e.Description
}
