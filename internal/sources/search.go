package sources

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/types"
)

// SearchConfig describes a page-numbered search API queried with GET.
type SearchConfig struct {
	QueryParam  string `yaml:"query_param" json:"query_param,omitempty"`
	PageParam   string `yaml:"page_param" json:"page_param,omitempty"`
	SizeParam   string `yaml:"size_param" json:"size_param,omitempty"`
	FromParam   string `yaml:"from_param" json:"from_param,omitempty"`
	ToParam     string `yaml:"to_param" json:"to_param,omitempty"`
	CodesParam  string `yaml:"codes_param" json:"codes_param,omitempty"`
	DateLayout  string `yaml:"date_layout" json:"date_layout,omitempty"`
	ResultsPath string `yaml:"results_path" json:"results_path,omitempty"`
	// TotalPath locates the total hit count; crawling stops once it is reached.
	// Empty disables the check.
	TotalPath string `yaml:"total_path" json:"total_path,omitempty"`
	// FirstPage is the number of the first page, 0 when unset.
	FirstPage int               `yaml:"first_page" json:"first_page,omitempty"`
	Params    map[string]string `yaml:"params" json:"params,omitempty"`
	Fields    FieldMap          `yaml:"fields" json:"fields"`
}

// DefaultSearchConfig returns conventional parameter names.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		QueryParam:  "q",
		PageParam:   "page",
		SizeParam:   "size",
		DateLayout:  "2006-01-02",
		ResultsPath: "results",
		TotalPath:   "total",
		FirstPage:   1,
		Fields:      DefaultFieldMap(),
	}
}

// SearchConnector crawls a page-numbered search API. The cursor carries the page
// number and the number of items received so far, as "page:received".
type SearchConnector struct {
	name  string
	url   string
	cfg   SearchConfig
	http  *fetch.Options
	pager PagerOptions
}

// NewSearchConnector creates a connector for the search endpoint at url.
func NewSearchConnector(name, url string, cfg SearchConfig, httpOpts *fetch.Options, pager PagerOptions) *SearchConnector {
	def := DefaultSearchConfig()
	if cfg.QueryParam == "" {
		cfg.QueryParam = def.QueryParam
	}
	if cfg.PageParam == "" {
		cfg.PageParam = def.PageParam
	}
	if cfg.SizeParam == "" {
		cfg.SizeParam = def.SizeParam
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = def.DateLayout
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = def.ResultsPath
	}
	if cfg.Fields == (FieldMap{}) {
		cfg.Fields = def.Fields
	}
	return &SearchConnector{name: name, url: url, cfg: cfg, http: httpOpts, pager: pager}
}

// Name returns the configured source name.
func (c *SearchConnector) Name() string { return c.name }

// Kind returns SourceSearchC.
func (c *SearchConnector) Kind() types.SourceKind { return types.SourceSearchC }

// FetchAll crawls pages until an empty page or the reported total.
func (c *SearchConnector) FetchAll(ctx context.Context, params FilterParams) iter.Seq[types.Candidate] {
	fetcher := PageFetcherFunc(func(ctx context.Context, cursor string) (Page, error) {
		page, received := c.cfg.FirstPage, 0
		if cursor != "" {
			var err error
			if page, received, err = parseSearchCursor(cursor); err != nil {
				return Page{}, &ParseError{Source: c.name, Message: "bad page cursor " + cursor, Cause: err}
			}
		}
		res, err := fetch.URL(ctx, c.pageURL(params, page), c.http)
		if err != nil {
			return Page{}, err
		}
		return c.parse(res.Body, page, received)
	})
	return NewPager(c.name, fetcher, c.pager).Items(ctx)
}

func (c *SearchConnector) pageURL(params FilterParams, page int) string {
	q := url.Values{}
	for k, v := range c.cfg.Params {
		q.Set(k, v)
	}
	if len(params.Keywords) > 0 {
		q.Set(c.cfg.QueryParam, strings.Join(params.Keywords, " "))
	}
	q.Set(c.cfg.PageParam, strconv.Itoa(page))
	q.Set(c.cfg.SizeParam, strconv.Itoa(params.Size()))
	if params.From != nil && c.cfg.FromParam != "" {
		q.Set(c.cfg.FromParam, params.From.Format(c.cfg.DateLayout))
	}
	if params.To != nil && c.cfg.ToParam != "" {
		q.Set(c.cfg.ToParam, params.To.Format(c.cfg.DateLayout))
	}
	if len(params.CategoryCodes) > 0 && c.cfg.CodesParam != "" {
		q.Set(c.cfg.CodesParam, strings.Join(params.CategoryCodes, ","))
	}

	sep := "?"
	if strings.Contains(c.url, "?") {
		sep = "&"
	}
	return c.url + sep + q.Encode()
}

func parseSearchCursor(cursor string) (page, received int, err error) {
	p, r, _ := strings.Cut(cursor, ":")
	if page, err = strconv.Atoi(p); err != nil {
		return 0, 0, err
	}
	if r != "" {
		if received, err = strconv.Atoi(r); err != nil {
			return 0, 0, err
		}
	}
	return page, received, nil
}

// parse reads one page. The total check counts items actually received, since
// servers may cap the page size below the one requested.
func (c *SearchConnector) parse(body []byte, page, received int) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, &ParseError{Source: c.name, Message: "response is not valid JSON"}
	}
	doc := gjson.ParseBytes(body)

	var out Page
	for _, item := range doc.Get(c.cfg.ResultsPath).Array() {
		out.Items = append(out.Items, c.cfg.Fields.Candidate(types.SourceSearchC, item))
	}
	if len(out.Items) == 0 {
		return out, nil
	}

	received += len(out.Items)
	if c.cfg.TotalPath != "" {
		if total := doc.Get(c.cfg.TotalPath); total.Exists() && int64(received) >= total.Int() {
			return out, nil
		}
	}
	out.Next = strconv.Itoa(page+1) + ":" + strconv.Itoa(received)
	return out, nil
}
