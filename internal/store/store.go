// Package store persists tenders, run logs and positive exemplars.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jonathan/tender-radar/internal/types"
)

// ErrNotFound is returned when a tender id has no record.
var ErrNotFound = errors.New("not found")

// Store is the record store used by the orchestrator, the CLI and the HTTP API.
type Store interface {
	// UpsertTender writes the static fields of t. An existing verdict and
	// first-seen time are kept; source tags and codes are unioned.
	UpsertTender(ctx context.Context, t *types.Tender) (created bool, err error)
	// SetVerdict records v for the tender unless the stored verdict came from a
	// better tier. It reports whether v was written.
	SetVerdict(ctx context.Context, id string, v types.Verdict) (applied bool, err error)
	GetTender(ctx context.Context, id string) (*types.Tender, error)
	QueryTenders(ctx context.Context, q Query) ([]*types.Tender, error)
	// RelevantTenders lists tenders classified relevant at or above minConfidence.
	RelevantTenders(ctx context.Context, minConfidence float64) ([]*types.Tender, error)

	AppendRunLog(ctx context.Context, log types.RunLog) error
	ListRunLogs(ctx context.Context, source string, limit int) ([]types.RunLog, error)

	ListExemplars(ctx context.Context) ([]types.PositiveExemplar, error)
	AddExemplar(ctx context.Context, e types.PositiveExemplar) error

	Close() error
}

// Query selects tenders. Zero values do not constrain.
type Query struct {
	Relevant      *bool
	MinConfidence float64
	Method        types.Method
	Source        types.SourceKind
	// Unclassified selects tenders with no verdict or an error verdict.
	Unclassified bool
	// Search matches a case-insensitive substring of title or organization.
	Search string
	Limit  int
}

// Matches applies q to a single tender.
func (q Query) Matches(t *types.Tender) bool {
	v := t.Classification
	if q.Unclassified && v != nil && !v.IsError() {
		return false
	}
	if q.Relevant != nil && (v == nil || v.IsRelevant != *q.Relevant) {
		return false
	}
	if q.MinConfidence > 0 && (v == nil || v.Confidence < q.MinConfidence) {
		return false
	}
	if q.Method != "" && (v == nil || v.Method != q.Method) {
		return false
	}
	if q.Source != "" && t.Source != q.Source {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Organization), needle) {
			return false
		}
	}
	return true
}

// Bool returns a pointer to b, for Query.Relevant.
func Bool(b bool) *bool { return &b }

// mergeStatic copies the static fields of incoming onto existing, keeping the
// verdict and first sighting.
func mergeStatic(existing, incoming *types.Tender) *types.Tender {
	out := *incoming
	out.FirstSeenAt = existing.FirstSeenAt
	if incoming.FirstSeenAt.Before(existing.FirstSeenAt) && !incoming.FirstSeenAt.IsZero() {
		out.FirstSeenAt = incoming.FirstSeenAt
	}
	if existing.LastSeenAt.After(out.LastSeenAt) {
		out.LastSeenAt = existing.LastSeenAt
	}
	out.SourceTags = types.MergeTags(existing.SourceTags, incoming.SourceTags)
	out.ClassificationCodes = types.MergeTags(existing.ClassificationCodes, incoming.ClassificationCodes)
	out.Classification = existing.Classification
	return &out
}

func cloneTender(t *types.Tender) *types.Tender {
	c := *t
	c.SourceTags = slices.Clone(t.SourceTags)
	c.ClassificationCodes = slices.Clone(t.ClassificationCodes)
	if t.Classification != nil {
		v := *t.Classification
		c.Classification = &v
	}
	return &c
}
