// Package similarity is the local fallback classifier: a TF-IDF nearest-neighbour
// match against a corpus of confirmed-relevant tenders.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

// DefaultThreshold is the minimum best-match similarity for a relevant verdict.
const DefaultThreshold = 0.3

// ErrNotReady is returned by Rebuild when the corpus is empty.
var ErrNotReady = errors.New("similarity corpus is empty")

// TenderQuerier supplies confirmed-relevant tenders for promotion.
type TenderQuerier interface {
	RelevantTenders(ctx context.Context, minConfidence float64) ([]*types.Tender, error)
}

// Options configures a Classifier.
type Options struct {
	Threshold float64
	Logger    logger.Logger
}

// Classifier scores text by its highest cosine similarity to any exemplar.
// Writers (AddExemplar, Rebuild, Promote) are serialized; Classify may run
// concurrently with them.
type Classifier struct {
	mu        sync.RWMutex
	repo      ExemplarRepository
	threshold float64
	log       logger.Logger

	loaded    bool
	exemplars []types.PositiveExemplar
	keys      map[string]struct{}

	model   *vectorizer
	vectors []vector
	fitted  []types.PositiveExemplar
}

// New creates a classifier over repo. The corpus is read lazily.
func New(repo ExemplarRepository, opts Options) *Classifier {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Classifier{
		repo:      repo,
		threshold: opts.Threshold,
		log:       logger.OrNop(opts.Logger),
		keys:      make(map[string]struct{}),
	}
}

// loadLocked reads the repository once. Caller holds the write lock.
func (c *Classifier) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	if c.repo != nil {
		list, err := c.repo.ListExemplars(ctx)
		if err != nil {
			return fmt.Errorf("failed to load exemplars: %w", err)
		}
		for _, e := range list {
			c.appendLocked(e)
		}
	}
	c.loaded = true
	return nil
}

func (c *Classifier) appendLocked(e types.PositiveExemplar) bool {
	key := exemplarKey(e.Title, e.Description)
	if _, dup := c.keys[key]; dup {
		return false
	}
	c.keys[key] = struct{}{}
	c.exemplars = append(c.exemplars, e)
	return true
}

func exemplarKey(title, description string) string {
	return textnorm.Join(title, description)
}

// AddExemplar appends a positive example and persists it. It does not retrain;
// call Rebuild to include it in classification. Confidence is clamped to [0, 1].
func (c *Classifier) AddExemplar(ctx context.Context, title, description string, confidence float64, source types.ExemplarSource) (types.PositiveExemplar, error) {
	title = textnorm.Clean(title)
	description = textnorm.Clean(description)
	if title == "" && description == "" {
		return types.PositiveExemplar{}, fmt.Errorf("exemplar needs a title or description")
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return types.PositiveExemplar{}, err
	}

	e := types.PositiveExemplar{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Confidence:  confidence,
		Source:      source,
		AddedAt:     time.Now().UTC(),
	}
	if _, dup := c.keys[exemplarKey(title, description)]; dup {
		return e, nil
	}
	if c.repo != nil {
		if err := c.repo.AddExemplar(ctx, e); err != nil {
			return types.PositiveExemplar{}, fmt.Errorf("failed to persist exemplar: %w", err)
		}
	}
	c.appendLocked(e)
	return e, nil
}

// Rebuild fits the vectorizer over every exemplar.
func (c *Classifier) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx)
}

func (c *Classifier) rebuildLocked(ctx context.Context) error {
	if err := c.loadLocked(ctx); err != nil {
		return err
	}
	if len(c.exemplars) == 0 {
		c.model, c.vectors, c.fitted = nil, nil, nil
		return ErrNotReady
	}

	docs := make([]string, len(c.exemplars))
	for i, e := range c.exemplars {
		docs[i] = e.Text()
	}
	model := fit(docs)
	vectors := make([]vector, len(docs))
	for i, doc := range docs {
		vectors[i] = model.transform(doc)
	}

	c.model = model
	c.vectors = vectors
	c.fitted = append([]types.PositiveExemplar(nil), c.exemplars...)
	c.log.Info("similarity model rebuilt",
		logger.Int("exemplars", len(docs)),
		logger.Int("vocabulary", len(model.vocab)))
	return nil
}

// Classify returns a fallback verdict for the text. A classifier that has never been
// fitted is rebuilt first; with no exemplars at all the verdict is the error verdict.
func (c *Classifier) Classify(ctx context.Context, title, description string) types.Verdict {
	c.mu.RLock()
	ready := c.model != nil
	c.mu.RUnlock()

	if !ready {
		c.mu.Lock()
		if c.model == nil {
			if err := c.rebuildLocked(ctx); err != nil {
				c.mu.Unlock()
				return types.ErrorVerdict("similarity classifier unavailable: " + err.Error())
			}
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return types.ErrorVerdict("similarity classifier unavailable: " + ErrNotReady.Error())
	}

	query := c.model.transform(title + " " + description)
	best, bestIdx := 0.0, -1
	for i, v := range c.vectors {
		if s := cosine(query, v); s > best {
			best, bestIdx = s, i
		}
	}
	if best > 1 {
		best = 1
	}

	verdict := types.Verdict{
		IsRelevant:   best >= c.threshold,
		Confidence:   types.ClampConfidence(best * 100),
		Method:       types.MethodFallback,
		ClassifiedAt: time.Now().UTC(),
	}
	if bestIdx >= 0 {
		verdict.Reasoning = fmt.Sprintf("closest exemplar %q, similarity %.2f (threshold %.2f)",
			c.fitted[bestIdx].Title, best, c.threshold)
	} else {
		verdict.Reasoning = fmt.Sprintf("no vocabulary shared with %d exemplars", len(c.fitted))
	}
	return verdict
}

// Promote copies relevant stored tenders at or above minConfidence into the corpus,
// skipping ones already present. It returns how many were added; the caller decides
// when to Rebuild.
func (c *Classifier) Promote(ctx context.Context, source TenderQuerier, minConfidence float64) (int, error) {
	tenders, err := source.RelevantTenders(ctx, minConfidence)
	if err != nil {
		return 0, fmt.Errorf("failed to query relevant tenders: %w", err)
	}

	added := 0
	for _, t := range tenders {
		// Fallback verdicts are never promoted; the corpus would otherwise train on itself.
		if t.Classification == nil || !t.Classification.IsRelevant || t.Classification.Method != types.MethodPrimary {
			continue
		}
		c.mu.RLock()
		if err := ctx.Err(); err != nil {
			c.mu.RUnlock()
			return added, err
		}
		_, dup := c.keys[exemplarKey(t.Title, t.Description)]
		loaded := c.loaded
		c.mu.RUnlock()
		if loaded && dup {
			continue
		}

		before := c.Len()
		if _, err := c.AddExemplar(ctx, t.Title, t.Description, t.Classification.Confidence/100, types.ExemplarPromoted); err != nil {
			return added, err
		}
		if c.Len() > before {
			added++
		}
	}
	c.log.Info("promoted tenders to exemplars",
		logger.Int("candidates", len(tenders)),
		logger.Int("added", added))
	return added, nil
}

// Exemplars returns a copy of the corpus, loading it if needed.
func (c *Classifier) Exemplars(ctx context.Context) ([]types.PositiveExemplar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	return append([]types.PositiveExemplar(nil), c.exemplars...), nil
}

// Len returns the number of exemplars currently held in memory.
func (c *Classifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.exemplars)
}
