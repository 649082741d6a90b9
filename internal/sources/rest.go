package sources

import (
	"context"
	"iter"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/types"
)

// RESTConfig describes a cursor-paged JSON API queried with POST.
type RESTConfig struct {
	// ResultsPath locates the array of items in the response.
	ResultsPath string `yaml:"results_path" json:"results_path,omitempty"`
	// NextCursorPath locates the cursor for the following page in the response.
	NextCursorPath string `yaml:"next_cursor_path" json:"next_cursor_path,omitempty"`
	// CursorField is the request body field carrying the cursor.
	CursorField   string `yaml:"cursor_field" json:"cursor_field,omitempty"`
	PageSizeField string `yaml:"page_size_field" json:"page_size_field,omitempty"`
	CodesField    string `yaml:"codes_field" json:"codes_field,omitempty"`
	KeywordsField string `yaml:"keywords_field" json:"keywords_field,omitempty"`
	FromField     string `yaml:"from_field" json:"from_field,omitempty"`
	ToField       string `yaml:"to_field" json:"to_field,omitempty"`
	DateLayout    string `yaml:"date_layout" json:"date_layout,omitempty"`
	// Body holds static fields merged into every request.
	Body   map[string]any `yaml:"body" json:"body,omitempty"`
	Fields FieldMap       `yaml:"fields" json:"fields"`
}

// DefaultRESTConfig returns field names for an iteration-token style API.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		ResultsPath:    "results",
		NextCursorPath: "iterationNextToken",
		CursorField:    "iterationNextToken",
		PageSizeField:  "limit",
		CodesField:     "cpvCodes",
		KeywordsField:  "keywords",
		FromField:      "publicationDateFrom",
		ToField:        "publicationDateTo",
		DateLayout:     "2006-01-02",
		Fields:         DefaultFieldMap(),
	}
}

// RESTConnector crawls a cursor-paged JSON API. When category codes are given it runs
// one partition per code and tags each candidate with the code that found it.
type RESTConnector struct {
	name  string
	url   string
	cfg   RESTConfig
	http  *fetch.Options
	pager PagerOptions
}

// NewRESTConnector creates a connector for the API at url.
func NewRESTConnector(name, url string, cfg RESTConfig, httpOpts *fetch.Options, pager PagerOptions) *RESTConnector {
	return &RESTConnector{name: name, url: url, cfg: withRESTDefaults(cfg), http: httpOpts, pager: pager}
}

func withRESTDefaults(cfg RESTConfig) RESTConfig {
	def := DefaultRESTConfig()
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = def.ResultsPath
	}
	if cfg.NextCursorPath == "" {
		cfg.NextCursorPath = def.NextCursorPath
	}
	if cfg.CursorField == "" {
		cfg.CursorField = def.CursorField
	}
	if cfg.PageSizeField == "" {
		cfg.PageSizeField = def.PageSizeField
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = def.DateLayout
	}
	if cfg.Fields == (FieldMap{}) {
		cfg.Fields = def.Fields
	}
	return cfg
}

// Name returns the configured source name.
func (c *RESTConnector) Name() string { return c.name }

// Kind returns SourceAPIA.
func (c *RESTConnector) Kind() types.SourceKind { return types.SourceAPIA }

// FetchAll crawls every partition in turn.
func (c *RESTConnector) FetchAll(ctx context.Context, params FilterParams) iter.Seq[types.Candidate] {
	partitions := params.CategoryCodes
	if len(partitions) == 0 {
		partitions = []string{""}
	}
	return func(yield func(types.Candidate) bool) {
		for _, code := range partitions {
			pager := NewPager(c.name, c.fetcher(params, code), c.pager)
			for cand := range pager.Items(ctx) {
				if code != "" {
					cand.AddTags("cpv:" + code)
				}
				if !yield(cand) {
					return
				}
			}
		}
	}
}

func (c *RESTConnector) fetcher(params FilterParams, code string) PageFetcher {
	return PageFetcherFunc(func(ctx context.Context, cursor string) (Page, error) {
		res, err := fetch.PostJSON(ctx, c.url, c.requestBody(params, code, cursor), c.http)
		if err != nil {
			return Page{}, err
		}
		return c.parse(res.Body)
	})
}

func (c *RESTConnector) requestBody(params FilterParams, code, cursor string) map[string]any {
	body := make(map[string]any, len(c.cfg.Body)+6)
	for k, v := range c.cfg.Body {
		body[k] = v
	}
	body[c.cfg.PageSizeField] = params.Size()
	if cursor != "" {
		body[c.cfg.CursorField] = cursor
	}
	if code != "" && c.cfg.CodesField != "" {
		body[c.cfg.CodesField] = []string{code}
	}
	if len(params.Keywords) > 0 && c.cfg.KeywordsField != "" {
		body[c.cfg.KeywordsField] = strings.Join(params.Keywords, " ")
	}
	if params.From != nil && c.cfg.FromField != "" {
		body[c.cfg.FromField] = params.From.Format(c.cfg.DateLayout)
	}
	if params.To != nil && c.cfg.ToField != "" {
		body[c.cfg.ToField] = params.To.Format(c.cfg.DateLayout)
	}
	return body
}

func (c *RESTConnector) parse(body []byte) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, &ParseError{Source: c.name, Message: "response is not valid JSON"}
	}
	doc := gjson.ParseBytes(body)
	results := doc.Get(c.cfg.ResultsPath)
	if results.Exists() && !results.IsArray() {
		return Page{}, &ParseError{Source: c.name, Message: "results path " + c.cfg.ResultsPath + " is not an array"}
	}

	var page Page
	for _, item := range results.Array() {
		page.Items = append(page.Items, c.cfg.Fields.Candidate(types.SourceAPIA, item))
	}
	page.Next = strings.TrimSpace(doc.Get(c.cfg.NextCursorPath).String())
	return page, nil
}
