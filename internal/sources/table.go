package sources

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/textnorm"
	"github.com/jonathan/tender-radar/internal/types"
)

// DefaultMaxStalls is how many consecutive unchanged snapshots end a table crawl.
const DefaultMaxStalls = 3

// TableBrowser drives a page that renders results in a paginated HTML table.
type TableBrowser interface {
	// Open navigates to url and waits for the table.
	Open(ctx context.Context, url string) error
	// Snapshot returns the current table HTML.
	Snapshot(ctx context.Context) (string, error)
	// Next activates the next-page control, reporting false when there is none.
	Next(ctx context.Context) (bool, error)
	// Wait gives a slow page time to re-render.
	Wait(ctx context.Context) error
	Close() error
}

// TableConfig maps table columns, by header text, onto candidate fields.
// Matching is case and accent insensitive. An empty Title column means the first column.
type TableConfig struct {
	TitleColumn        string `yaml:"title_column" json:"title_column,omitempty"`
	DescriptionColumn  string `yaml:"description_column" json:"description_column,omitempty"`
	OrganizationColumn string `yaml:"organization_column" json:"organization_column,omitempty"`
	CountryColumn      string `yaml:"country_column" json:"country_column,omitempty"`
	PublishedColumn    string `yaml:"published_column" json:"published_column,omitempty"`
	DeadlineColumn     string `yaml:"deadline_column" json:"deadline_column,omitempty"`
	CodesColumn        string `yaml:"codes_column" json:"codes_column,omitempty"`
	// MaxStalls overrides DefaultMaxStalls.
	MaxStalls int `yaml:"max_stalls" json:"max_stalls,omitempty"`
	// Browser selectors, passed to the production browser.
	TableSelector string `yaml:"table_selector" json:"table_selector,omitempty"`
	NextSelector  string `yaml:"next_selector" json:"next_selector,omitempty"`
}

// Cell is one table cell with its first hyperlink, if any.
type Cell struct {
	Text string
	Href string
}

// Row is one body row of a results table.
type Row struct {
	Cells []Cell
}

// ParseTable reads the header row and body rows of the first table in html.
// Rows without any data cell are skipped.
func ParseTable(html string) ([]string, []Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse table HTML: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil, fmt.Errorf("no table element found")
	}

	var headers []string
	table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		ths := tr.Find("th")
		if ths.Length() == 0 {
			return true
		}
		ths.Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, textnorm.Clean(th.Text()))
		})
		return false
	})

	var rows []Row
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		var row Row
		tds.Each(func(_ int, td *goquery.Selection) {
			href, _ := td.Find("a[href]").First().Attr("href")
			row.Cells = append(row.Cells, Cell{Text: textnorm.Clean(td.Text()), Href: strings.TrimSpace(href)})
		})
		rows = append(rows, row)
	})
	return headers, rows, nil
}

// TableConnector crawls a paginated results table through a TableBrowser.
type TableConnector struct {
	name       string
	url        string
	cfg        TableConfig
	newBrowser func() TableBrowser
	pager      PagerOptions
	log        logger.Logger
}

// NewTableConnector creates a connector; newBrowser is called once per FetchAll.
func NewTableConnector(name, url string, cfg TableConfig, newBrowser func() TableBrowser, pager PagerOptions) *TableConnector {
	if cfg.MaxStalls <= 0 {
		cfg.MaxStalls = DefaultMaxStalls
	}
	return &TableConnector{
		name:       name,
		url:        url,
		cfg:        cfg,
		newBrowser: newBrowser,
		pager:      pager,
		log:        logger.OrNop(pager.Logger).With(logger.String("source", name)),
	}
}

// Name returns the configured source name.
func (c *TableConnector) Name() string { return c.name }

// Kind returns SourceHTMLB.
func (c *TableConnector) Kind() types.SourceKind { return types.SourceHTMLB }

// FetchAll opens the table and follows the next control until it disappears or the
// table stops changing. Filtering happens downstream; FilterParams only sets limits.
func (c *TableConnector) FetchAll(ctx context.Context, _ FilterParams) iter.Seq[types.Candidate] {
	return func(yield func(types.Candidate) bool) {
		browser := c.newBrowser()
		defer func() { _ = browser.Close() }()

		crawl := &tableCrawl{conn: c, browser: browser}
		for cand := range NewPager(c.name, crawl, c.pager).Items(ctx) {
			if !yield(cand) {
				return
			}
		}
	}
}

type tableCrawl struct {
	conn        *TableConnector
	browser     TableBrowser
	fingerprint string
}

func (t *tableCrawl) FetchPage(ctx context.Context, cursor string) (Page, error) {
	if cursor == "" {
		if err := t.browser.Open(ctx, t.conn.url); err != nil {
			return Page{}, err
		}
	} else {
		ok, err := t.browser.Next(ctx)
		if err != nil {
			// the click may have landed; retrying would skip a page
			return Page{}, retry.Permanent(err)
		}
		if !ok {
			return Page{}, nil
		}
	}

	html, changed, err := t.snapshot(ctx)
	if err != nil {
		return Page{}, retry.Permanent(err)
	}
	if !changed {
		t.conn.log.Info("table unchanged after next, treating as last page",
			logger.Int("stalls", t.conn.cfg.MaxStalls))
		return Page{}, nil
	}

	headers, rows, err := ParseTable(html)
	if err != nil {
		return Page{}, &ParseError{Source: t.conn.name, Message: "unreadable table", Cause: err}
	}
	page := Page{Items: t.conn.candidates(headers, rows)}

	n := 1
	if cursor != "" {
		n, _ = strconv.Atoi(cursor)
	}
	page.Next = strconv.Itoa(n + 1)
	return page, nil
}

// snapshot reads the table, waiting for it to change from the previous page.
// It gives up after MaxStalls consecutive unchanged snapshots.
func (t *tableCrawl) snapshot(ctx context.Context) (string, bool, error) {
	for stalls := 0; ; stalls++ {
		html, err := t.browser.Snapshot(ctx)
		if err != nil {
			return "", false, err
		}
		fp := fetch.Fingerprint(html)
		if fp != t.fingerprint {
			t.fingerprint = fp
			return html, true, nil
		}
		if stalls+1 >= t.conn.cfg.MaxStalls {
			return "", false, nil
		}
		if err := t.browser.Wait(ctx); err != nil {
			return "", false, err
		}
	}
}

func (c *TableConnector) candidates(headers []string, rows []Row) []types.Candidate {
	col := columnIndex(headers)
	titleIdx := 0
	if c.cfg.TitleColumn != "" {
		titleIdx = col(c.cfg.TitleColumn)
	}

	out := make([]types.Candidate, 0, len(rows))
	for _, row := range rows {
		cand := types.Candidate{
			Source:       types.SourceHTMLB,
			Title:        cellText(row, titleIdx),
			Description:  cellText(row, col(c.cfg.DescriptionColumn)),
			Organization: cellText(row, col(c.cfg.OrganizationColumn)),
			Country:      strings.ToUpper(cellText(row, col(c.cfg.CountryColumn))),
		}
		cand.PublicationDate = ParseDate(cellText(row, col(c.cfg.PublishedColumn)))
		cand.Deadline = ParseDate(cellText(row, col(c.cfg.DeadlineColumn)))
		if codes := cellText(row, col(c.cfg.CodesColumn)); codes != "" {
			cand.ClassificationCodes = splitCodes(codes)
		}
		for _, cell := range row.Cells {
			if cell.Href != "" {
				cand.URL = c.resolve(cell.Href)
				break
			}
		}
		out = append(out, cand)
	}
	return out
}

func (c *TableConnector) resolve(href string) string {
	base, err := url.Parse(c.url)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func columnIndex(headers []string) func(name string) int {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = textnorm.Fold(h)
	}
	return func(name string) int {
		if name == "" {
			return -1
		}
		want := textnorm.Fold(name)
		for i, h := range folded {
			if h == want {
				return i
			}
		}
		return -1
	}
}

func cellText(row Row, idx int) string {
	if idx < 0 || idx >= len(row.Cells) {
		return ""
	}
	return row.Cells[idx].Text
}

func splitCodes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '|'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
