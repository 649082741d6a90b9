// Package sources implements paged connectors that turn remote tender listings into
// lazy, finite sequences of candidates.
package sources

import (
	"context"
	"iter"
	"time"

	"github.com/jonathan/tender-radar/internal/types"
)

// DefaultPageSize is used when FilterParams.PageSize is not set.
const DefaultPageSize = 50

// FilterParams narrows what a source returns. Zero values mean "no constraint".
type FilterParams struct {
	From          *time.Time
	To            *time.Time
	CategoryCodes []string
	Keywords      []string
	PageSize      int
}

// Size returns the page size, falling back to DefaultPageSize.
func (p FilterParams) Size() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Connector yields every candidate a source holds for the given filter.
// The sequence is lazy, finite and not restartable mid-stream; calling FetchAll
// again starts over from the first page. Transient failures end the stream
// early instead of surfacing as errors.
type Connector interface {
	Name() string
	Kind() types.SourceKind
	FetchAll(ctx context.Context, params FilterParams) iter.Seq[types.Candidate]
}

// Page is one page of results. An empty Next means there are no further pages.
type Page struct {
	Items []types.Candidate
	Next  string
}

// PageFetcher fetches the page identified by cursor. The empty cursor is the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, cursor string) (Page, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor string) (Page, error) {
	return f(ctx, cursor)
}
