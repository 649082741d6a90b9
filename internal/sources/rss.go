package sources

import (
	"cmp"
	"context"
	"iter"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

const httpPrefix = "http"

// RSSConnector reads one or more RSS or Atom feeds. Each feed is a single page.
type RSSConnector struct {
	name  string
	feeds []string
	http  *fetch.Options
	pager PagerOptions
}

// NewRSSConnector creates a connector over the given feed URLs.
func NewRSSConnector(name string, feeds []string, httpOpts *fetch.Options, pager PagerOptions) *RSSConnector {
	return &RSSConnector{name: name, feeds: feeds, http: httpOpts, pager: pager}
}

// Name returns the configured source name.
func (c *RSSConnector) Name() string { return c.name }

// Kind returns SourceRSS.
func (c *RSSConnector) Kind() types.SourceKind { return types.SourceRSS }

// FetchAll reads every feed in order and drops items outside the date window.
func (c *RSSConnector) FetchAll(ctx context.Context, params FilterParams) iter.Seq[types.Candidate] {
	return func(yield func(types.Candidate) bool) {
		for _, feedURL := range c.feeds {
			fetcher := PageFetcherFunc(func(ctx context.Context, _ string) (Page, error) {
				res, err := fetch.URL(ctx, feedURL, c.http)
				if err != nil {
					return Page{}, err
				}
				return c.parse(res.HTML())
			})
			for cand := range NewPager(c.name, fetcher, c.pager).Items(ctx) {
				if !inWindow(cand, params) {
					continue
				}
				if !yield(cand) {
					return
				}
			}
		}
	}
}

func (c *RSSConnector) parse(body string) (Page, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return Page{}, &ParseError{Source: c.name, Message: "unreadable feed", Cause: err}
	}

	var page Page
	for _, entry := range feed.Items {
		link := entry.Link
		if link == "" && strings.HasPrefix(entry.GUID, httpPrefix) {
			link = entry.GUID
		}
		desc := entry.Description
		if desc == "" {
			desc = entry.Content
		}
		cand := types.Candidate{
			Source:          types.SourceRSS,
			NaturalKey:      cmp.Or(entry.GUID, link),
			Title:           textnorm.Clean(entry.Title),
			Description:     textnorm.Clean(desc),
			Organization:    textnorm.Clean(feed.Title),
			URL:             link,
			PublicationDate: entry.PublishedParsed,
		}
		if cand.NaturalKey == "" {
			cand.NaturalKey = cand.Title
		}
		for _, cat := range entry.Categories {
			if cat = strings.TrimSpace(cat); cat != "" {
				cand.AddTags("category:" + textnorm.Fold(cat))
			}
		}
		page.Items = append(page.Items, cand)
	}
	return page, nil
}

func inWindow(c types.Candidate, params FilterParams) bool {
	if c.PublicationDate == nil {
		return true
	}
	if params.From != nil && c.PublicationDate.Before(*params.From) {
		return false
	}
	if params.To != nil && c.PublicationDate.After(*params.To) {
		return false
	}
	return true
}
