// Package dedup assigns stable identifiers to candidates and collapses repeated
// sightings of the same item into one Tender.
package dedup

import (
	"encoding/hex"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/types"
)

// Namespace scopes the name-based identifiers. Changing it changes every id.
var Namespace = uuid.MustParse("6f1b7c1e-3f0a-5d2b-9a43-7c5e2d8b4a10")

// AssignID returns the stable identifier for a natural key: the SHA-1 name-based
// UUID of the key in Namespace, as 32 lowercase hex characters.
func AssignID(naturalKey string) string {
	id := uuid.NewSHA1(Namespace, []byte(naturalKey))
	return hex.EncodeToString(id[:])
}

// Deduplicator accumulates candidates into tenders keyed by stable id.
// It is not safe for concurrent use.
type Deduplicator struct {
	tenders map[string]*types.Tender
	order   []string
	empty   int
	now     func() time.Time
	log     logger.Logger
}

// New creates an empty Deduplicator.
func New(log logger.Logger) *Deduplicator {
	return &Deduplicator{
		tenders: make(map[string]*types.Tender),
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.OrNop(log),
	}
}

// Add folds one candidate in. It returns the tender and whether it was new.
// A candidate that reaches here without a natural key is resolved the way
// connectors do it. The positional fallback carries a per-Deduplicator counter
// and a content digest, so two keyless candidates never merge within a batch and
// unrelated ones never merge across sources or runs.
func (d *Deduplicator) Add(c types.Candidate) (*types.Tender, bool) {
	if c.NaturalKey == "" {
		d.empty++
		key, positional := c.ResolveKey(string(c.Source), d.empty)
		if positional {
			d.log.Warn("candidate without natural key",
				logger.String("source", string(c.Source)),
				logger.String("placeholder", key))
		}
	}

	id := AssignID(c.NaturalKey)
	if t, ok := d.tenders[id]; ok {
		t.Absorb(c, d.now())
		return t, false
	}
	t := types.NewTender(id, c, d.now())
	d.tenders[id] = t
	d.order = append(d.order, id)
	return t, true
}

// Ingest folds every candidate of seq and returns the accumulated tenders by id.
func (d *Deduplicator) Ingest(seq iter.Seq[types.Candidate]) map[string]*types.Tender {
	for c := range seq {
		d.Add(c)
	}
	return d.tenders
}

// Tenders returns the accumulated tenders in first-seen order.
func (d *Deduplicator) Tenders() []*types.Tender {
	out := make([]*types.Tender, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.tenders[id])
	}
	return out
}

// Len returns the number of distinct tenders.
func (d *Deduplicator) Len() int {
	return len(d.tenders)
}
