package sources

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

// maxDescriptionRunes bounds descriptions pulled from detail pages.
const maxDescriptionRunes = 4000

// DetailEnricher fills missing descriptions from the candidate's detail page.
// Detail requests go through the same retry policy and polite delay as pages.
type DetailEnricher struct {
	http      *fetch.Options
	selectors []string
	retry     retry.Config
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewDetailEnricher creates an enricher. A nil selector list uses fetch.NoticeSelectors.
// Only the Retry, Delay and Logger fields of opts are used.
func NewDetailEnricher(httpOpts *fetch.Options, selectors []string, opts PagerOptions) *DetailEnricher {
	if len(selectors) == 0 {
		selectors = fetch.NoticeSelectors()
	}
	e := &DetailEnricher{
		http:      httpOpts,
		selectors: selectors,
		retry:     opts.Retry,
		limiter:   politeLimiter(opts.Delay),
		log:       logger.OrNop(opts.Logger),
	}
	e.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.log.Debug("detail fetch failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err))
	}
	return e
}

// Enrich fetches the detail page when the description is empty. Any failure leaves
// the candidate unchanged. It reports whether the candidate was modified.
func (e *DetailEnricher) Enrich(ctx context.Context, c *types.Candidate) bool {
	if c.Description != "" || c.URL == "" {
		return false
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return false
	}

	var res *fetch.Result
	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		var ferr error
		res, ferr = fetch.URL(ctx, c.URL, e.http)
		return ferr
	})
	if err != nil {
		e.log.Debug("detail fetch failed", logger.String("url", c.URL), logger.Error(err))
		return false
	}
	text, err := fetch.ExtractMainText(res.HTML(), e.selectors)
	if err != nil {
		e.log.Debug("detail extraction failed", logger.String("url", c.URL), logger.Error(err))
		return false
	}
	text = textnorm.Clean(text)
	if text == "" {
		return false
	}
	if r := []rune(text); len(r) > maxDescriptionRunes {
		text = string(r[:maxDescriptionRunes])
	}
	c.Description = text
	return true
}
