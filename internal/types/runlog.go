package types

import (
	"time"

	"github.com/google/uuid"
)

// RunLog is the append-only record of one ingestion run over one source.
type RunLog struct {
	ID              uuid.UUID `json:"id"`
	Source          string    `json:"source"`
	StartedAt       time.Time `json:"started_at"`
	Found           int       `json:"found"`
	New             int       `json:"new"`
	Updated         int       `json:"updated"`
	Classified      int       `json:"classified"`
	Relevant        int       `json:"relevant"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}
