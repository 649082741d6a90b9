// Package orchestrator drives ingestion runs and the two-tier classification of tenders.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/telemetry"
	"github.com/jonathan/tender-radar/internal/types"
)

// Tier is one classification strategy. Implementations never fail; problems are
// reported as verdicts with method error.
type Tier interface {
	Classify(ctx context.Context, title, description string) types.Verdict
}

// Notifier is told about tenders that became relevant during a run.
type Notifier interface {
	NotifyRelevant(ctx context.Context, tenders []*types.Tender) error
}

// Options configures an Orchestrator.
type Options struct {
	Logger  logger.Logger
	Metrics *telemetry.Provider
	// Notifier is optional.
	Notifier Notifier
	// NotifyMinConfidence is the confidence floor for notifications.
	NotifyMinConfidence float64
	Now                 func() time.Time
}

// Orchestrator classifies tenders with the primary tier, falls back to the
// similarity tier, and persists verdicts under the merge rule.
type Orchestrator struct {
	primary  Tier
	fallback Tier
	store    store.Store
	opts     Options
	log      logger.Logger
}

// New creates an Orchestrator. Either tier may be nil, in which case it always
// answers with an error verdict.
func New(primary, fallback Tier, st store.Store, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		store:    st,
		opts:     opts,
		log:      logger.OrNop(opts.Logger),
	}
}

// MergeVerdict returns the verdict to keep on record: incoming when its method is
// no worse than existing's, otherwise existing.
func MergeVerdict(existing *types.Verdict, incoming types.Verdict) types.Verdict {
	if types.ShouldReplace(existing, incoming) {
		return incoming
	}
	return *existing
}

func (o *Orchestrator) runTier(ctx context.Context, name string, tier Tier, t *types.Tender) types.Verdict {
	if tier == nil {
		return types.ErrorVerdict(name + " classifier not configured")
	}
	start := time.Now()
	v := tier.Classify(ctx, t.Title, t.Description)
	o.opts.Metrics.RecordVerdict(name, string(v.Method), v.IsRelevant, time.Since(start))
	return v
}

// Classify produces the final verdict for one tender: primary first, the
// similarity tier as soon as the primary errors, and the conservative error
// verdict when both fail.
func (o *Orchestrator) Classify(ctx context.Context, t *types.Tender) types.Verdict {
	v := o.runTier(ctx, "primary", o.primary, t)
	if !v.IsError() {
		return v
	}
	primaryErr := v.Reasoning

	fb := o.runTier(ctx, "fallback", o.fallback, t)
	if !fb.IsError() {
		o.log.Debug("used fallback verdict",
			logger.String("tender_id", t.ID),
			logger.String("primary_error", primaryErr),
		)
		return fb
	}

	o.log.Warn("both classification tiers failed",
		logger.String("tender_id", t.ID),
		logger.String("primary_error", primaryErr),
		logger.String("fallback_error", fb.Reasoning),
	)
	return types.ErrorVerdict(fmt.Sprintf("primary: %s; fallback: %s", primaryErr, fb.Reasoning))
}

// ClassifyBatch classifies tenders one at a time and returns verdicts by tender id.
// It stops early when ctx is done; unclassified tenders are absent from the map.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, tenders []*types.Tender) map[string]types.Verdict {
	out := make(map[string]types.Verdict, len(tenders))
	for _, t := range tenders {
		if ctx.Err() != nil {
			o.log.Warn("classification batch cancelled",
				logger.Int("done", len(out)),
				logger.Int("total", len(tenders)),
			)
			break
		}
		out[t.ID] = o.Classify(ctx, t)
	}
	return out
}

// ReclassifyResult summarises a Reclassify call.
type ReclassifyResult struct {
	Considered int
	Applied    int
	Relevant   int
}

// Reclassify classifies stored tenders matching q and persists the verdicts.
func (o *Orchestrator) Reclassify(ctx context.Context, q store.Query) (ReclassifyResult, error) {
	var res ReclassifyResult
	tenders, err := o.store.QueryTenders(ctx, q)
	if err != nil {
		return res, fmt.Errorf("failed to load tenders: %w", err)
	}
	res.Considered = len(tenders)

	var newlyRelevant []*types.Tender
	for id, v := range o.ClassifyBatch(ctx, tenders) {
		applied, err := o.store.SetVerdict(ctx, id, v)
		if err != nil {
			return res, fmt.Errorf("failed to store verdict: %w", err)
		}
		if !applied {
			continue
		}
		res.Applied++
		if v.IsRelevant {
			res.Relevant++
			if t := findTender(tenders, id); t != nil && becameRelevant(t.Classification, v) {
				t.Classification = &v
				newlyRelevant = append(newlyRelevant, t)
			}
		}
	}
	o.notify(ctx, newlyRelevant)

	o.log.Info("reclassification finished",
		logger.Int("considered", res.Considered),
		logger.Int("applied", res.Applied),
		logger.Int("relevant", res.Relevant),
	)
	return res, nil
}

func findTender(tenders []*types.Tender, id string) *types.Tender {
	for _, t := range tenders {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func becameRelevant(previous *types.Verdict, v types.Verdict) bool {
	return v.IsRelevant && (previous == nil || !previous.IsRelevant)
}

func (o *Orchestrator) notify(ctx context.Context, tenders []*types.Tender) {
	if o.opts.Notifier == nil || len(tenders) == 0 {
		return
	}
	var selected []*types.Tender
	for _, t := range tenders {
		if t.Classification != nil && t.Classification.Confidence >= o.opts.NotifyMinConfidence {
			selected = append(selected, t)
		}
	}
	if len(selected) == 0 {
		return
	}
	if err := o.opts.Notifier.NotifyRelevant(ctx, selected); err != nil {
		o.log.Warn("notification failed", logger.Int("tenders", len(selected)), logger.Error(err))
	}
}
