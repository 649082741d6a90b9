package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/tender-radar/internal/dedup"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/sources"
	"github.com/jonathan/tender-radar/internal/types"
)

// Enricher completes a candidate in place, for example from its detail page.
type Enricher interface {
	Enrich(ctx context.Context, c *types.Candidate) bool
}

// Gate decides whether a candidate is kept. *filter.Filter satisfies it.
type Gate interface {
	Accepts(c *types.Candidate) bool
}

// Source is one connector together with its optional enricher.
type Source struct {
	Connector sources.Connector
	Enricher  Enricher
}

// RunRequest describes one ingestion run.
type RunRequest struct {
	Sources []Source
	Params  sources.FilterParams
	// Filter is optional; nil keeps every candidate.
	Filter Gate
	// Classify runs the classification tiers after upserting.
	Classify bool
	// Reclassify also classifies tenders that already carry a primary verdict.
	Reclassify bool
}

// RunResult holds one RunLog per source, in request order, and the tenders
// that became relevant.
type RunResult struct {
	Logs          []types.RunLog
	NewlyRelevant []*types.Tender
}

// Succeeded reports whether every source run completed.
func (r RunResult) Succeeded() bool {
	for _, l := range r.Logs {
		if !l.Success {
			return false
		}
	}
	return true
}

// runLogTimeout bounds the run log write after a run was cancelled.
const runLogTimeout = 10 * time.Second

// Run ingests every source concurrently; each source is crawled, filtered,
// stored and classified sequentially. Exactly one RunLog is appended per source.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if o.store == nil {
		return RunResult{}, errors.New("run requires a store")
	}

	logs := make([]types.RunLog, len(req.Sources))
	relevant := make([][]*types.Tender, len(req.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range req.Sources {
		g.Go(func() error {
			logs[i], relevant[i] = o.runSource(gctx, src, req)
			// a cancelled run still records its log
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runLogTimeout)
			defer cancel()
			if err := o.store.AppendRunLog(wctx, logs[i]); err != nil {
				o.log.Error("failed to append run log",
					logger.String("source", logs[i].Source),
					logger.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	var res RunResult
	res.Logs = logs
	for _, r := range relevant {
		res.NewlyRelevant = append(res.NewlyRelevant, r...)
	}
	o.notify(ctx, res.NewlyRelevant)
	return res, ctx.Err()
}

type sourceRun struct {
	log      types.RunLog
	failures []error
}

func (s *sourceRun) fail(err error) {
	s.failures = append(s.failures, err)
}

func (o *Orchestrator) runSource(ctx context.Context, src Source, req RunRequest) (types.RunLog, []*types.Tender) {
	conn := src.Connector
	run := &sourceRun{log: types.RunLog{
		ID:        uuid.New(),
		Source:    conn.Name(),
		StartedAt: o.opts.Now(),
	}}
	log := o.log.With(logger.String("source", conn.Name()), logger.String("run_id", run.log.ID.String()))
	log.Info("source run started", logger.String("kind", string(conn.Kind())))
	start := time.Now()

	d := dedup.New(log)
	skipped := 0
	for c := range conn.FetchAll(ctx, req.Params) {
		run.log.Found++
		if src.Enricher != nil {
			src.Enricher.Enrich(ctx, &c)
		}
		if req.Filter != nil && !req.Filter.Accepts(&c) {
			skipped++
			continue
		}
		d.Add(c)
	}

	var toClassify []*types.Tender
	previous := make(map[string]*types.Verdict)
	for _, t := range d.Tenders() {
		if ctx.Err() != nil {
			break
		}
		created, err := o.store.UpsertTender(ctx, t)
		if err != nil {
			run.fail(err)
			log.Error("failed to upsert tender", logger.String("tender_id", t.ID), logger.Error(err))
			continue
		}
		o.opts.Metrics.RecordUpsert(conn.Name(), created)
		if created {
			run.log.New++
		} else {
			run.log.Updated++
		}
		if !req.Classify {
			continue
		}
		if !created {
			stored, err := o.store.GetTender(ctx, t.ID)
			if err != nil {
				run.fail(err)
				continue
			}
			previous[t.ID] = stored.Classification
			if !req.Reclassify && stored.Classification != nil && stored.Classification.Method == types.MethodPrimary {
				continue
			}
		}
		toClassify = append(toClassify, t)
	}

	var newlyRelevant []*types.Tender
	if req.Classify {
		for _, t := range toClassify {
			if ctx.Err() != nil {
				break
			}
			v := o.Classify(ctx, t)
			applied, err := o.store.SetVerdict(ctx, t.ID, v)
			if err != nil {
				run.fail(err)
				log.Error("failed to store verdict", logger.String("tender_id", t.ID), logger.Error(err))
				continue
			}
			run.log.Classified++
			final := MergeVerdict(previous[t.ID], v)
			if final.IsRelevant {
				run.log.Relevant++
			}
			if applied && becameRelevant(previous[t.ID], v) {
				t.Classification = &v
				newlyRelevant = append(newlyRelevant, t)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		run.fail(err)
	}
	run.log.DurationSeconds = time.Since(start).Seconds()
	run.log.Success = len(run.failures) == 0
	if !run.log.Success {
		run.log.Error = summarize(run.failures)
	}
	o.opts.Metrics.RecordRun(conn.Name(), run.log.Success, time.Since(start))

	log.Info("source run finished",
		logger.Int("found", run.log.Found),
		logger.Int("filtered_out", skipped),
		logger.Int("new", run.log.New),
		logger.Int("updated", run.log.Updated),
		logger.Int("classified", run.log.Classified),
		logger.Int("relevant", run.log.Relevant),
		logger.Bool("success", run.log.Success),
		logger.Float64("duration_seconds", run.log.DurationSeconds),
	)
	return run.log, newlyRelevant
}

func summarize(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	return fmt.Sprintf("%d errors, first: %v", len(errs), errs[0])
}
