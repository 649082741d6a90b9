package sources

import (
	"context"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/telemetry"
	"github.com/jonathan/tender-radar/internal/types"
)

// DefaultPageDelay is the polite delay between two page requests to the same source.
const DefaultPageDelay = 500 * time.Millisecond

// PagerOptions configures a Pager.
type PagerOptions struct {
	Retry retry.Config
	// Delay is the minimum interval between page requests. Zero uses DefaultPageDelay;
	// a negative value disables the delay.
	Delay time.Duration
	// MaxPages bounds the crawl. Zero means unbounded.
	MaxPages int
	Logger   logger.Logger
	Metrics  *telemetry.Provider
}

// Pager drives a PageFetcher through the states Start, HasMore and Exhausted.
// A page that is empty, has no next cursor, or fails after retries ends the stream.
type Pager struct {
	name    string
	fetcher PageFetcher
	opts    PagerOptions
	limiter *rate.Limiter
	log     logger.Logger
}

// NewPager creates a pager for the named source.
func NewPager(name string, fetcher PageFetcher, opts PagerOptions) *Pager {
	return &Pager{
		name:    name,
		fetcher: fetcher,
		opts:    opts,
		limiter: politeLimiter(opts.Delay),
		log:     logger.OrNop(opts.Logger).With(logger.String("source", name)),
	}
}

// politeLimiter spaces requests by delay: zero means DefaultPageDelay, negative
// means no delay.
func politeLimiter(delay time.Duration) *rate.Limiter {
	if delay == 0 {
		delay = DefaultPageDelay
	}
	if delay < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Pages yields pages in order until the source is exhausted.
func (p *Pager) Pages(ctx context.Context) iter.Seq[Page] {
	return func(yield func(Page) bool) {
		cfg := p.opts.Retry
		cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
			p.opts.Metrics.RecordRetry(p.name)
			p.log.Warn("page fetch failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err))
		}

		cursor := ""
		seen := make(map[string]struct{})
		for n := 1; ; n++ {
			if p.opts.MaxPages > 0 && n > p.opts.MaxPages {
				p.log.Info("page limit reached", logger.Int("max_pages", p.opts.MaxPages))
				return
			}
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}

			var page Page
			err := retry.Do(ctx, cfg, func(ctx context.Context) error {
				var ferr error
				page, ferr = p.fetcher.FetchPage(ctx, cursor)
				return ferr
			})
			if err != nil {
				p.opts.Metrics.RecordPageFailure(p.name)
				p.log.Warn("page abandoned, treating source as exhausted",
					logger.Int("page", n),
					logger.String("cursor", cursor),
					logger.Error(err))
				return
			}
			if len(page.Items) == 0 {
				p.log.Debug("empty page, source exhausted", logger.Int("page", n))
				return
			}

			p.opts.Metrics.RecordPage(p.name, len(page.Items))
			if !yield(page) {
				return
			}

			if page.Next == "" {
				return
			}
			if _, dup := seen[page.Next]; dup || page.Next == cursor {
				p.log.Warn("next cursor repeats, stopping", logger.String("cursor", page.Next))
				return
			}
			seen[page.Next] = struct{}{}
			cursor = page.Next
		}
	}
}

// Items flattens Pages into candidates. Every candidate leaves with a natural key:
// its own, else its detail URL, else its title, else a positional key scoped to
// this source.
func (p *Pager) Items(ctx context.Context) iter.Seq[types.Candidate] {
	return func(yield func(types.Candidate) bool) {
		index := 0
		for page := range p.Pages(ctx) {
			for _, item := range page.Items {
				index++
				if key, positional := item.ResolveKey(p.name, index); positional {
					p.log.Warn("item without key, link or title, using positional key",
						logger.String("key", key))
				}
				if !yield(item) {
					return
				}
			}
		}
	}
}
