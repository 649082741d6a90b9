package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/types"
)

func searchServer(t *testing.T, total, size int, requests *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*requests = append(*requests, r.URL.RawQuery)
		mu.Unlock()
		var page int
		_, _ = fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)

		start := (page - 1) * size
		var items []string
		for i := start; i < start+size && i < total; i++ {
			items = append(items, fmt.Sprintf(`{"id":"S%d","title":"Study %d"}`, i, i))
		}
		_, _ = fmt.Fprintf(w, `{"total":%d,"results":[%s]}`, total, strings.Join(items, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchConnector_StopsAtTotal(t *testing.T) {
	var requests []string
	srv := searchServer(t, 5, 2, &requests)

	conn := NewSearchConnector("search", srv.URL, SearchConfig{FirstPage: 1, TotalPath: "total"}, nil, testPagerOptions())
	got := drain(conn.FetchAll(context.Background(), FilterParams{Keywords: []string{"economic", "study"}, PageSize: 2}))

	require.Len(t, got, 5)
	assert.Equal(t, "S0", got[0].NaturalKey)
	assert.Equal(t, types.SourceSearchC, got[4].Source)
	assert.Len(t, requests, 3)
	assert.Contains(t, requests[0], "q=economic+study")
	assert.Contains(t, requests[0], "page=1")
	assert.Contains(t, requests[2], "page=3")
}

func TestSearchConnector_EmptyPageEnds(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Query().Get("page") == "0" {
			_, _ = w.Write([]byte(`{"results":[{"id":"only","title":"One"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	conn := NewSearchConnector("search", srv.URL+"?lang=en", SearchConfig{}, nil, testPagerOptions())
	got := drain(conn.FetchAll(context.Background(), FilterParams{}))

	require.Len(t, got, 1)
	assert.Len(t, requests, 2)
	assert.Contains(t, requests[0], "lang=en")
}

func TestSearchConnector_ServerCapsPageSize(t *testing.T) {
	var requests []string
	srv := searchServer(t, 6, 2, &requests)

	conn := NewSearchConnector("search", srv.URL, SearchConfig{FirstPage: 1, TotalPath: "total"}, nil, testPagerOptions())
	got := drain(conn.FetchAll(context.Background(), FilterParams{PageSize: 50}))

	require.Len(t, got, 6)
	assert.Equal(t, "S5", got[5].NaturalKey)
	assert.Len(t, requests, 3)
	assert.Contains(t, requests[0], "size=50")
}

func TestParseSearchCursor(t *testing.T) {
	page, received, err := parseSearchCursor("3:40")
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 40, received)

	page, received, err = parseSearchCursor("2")
	require.NoError(t, err)
	assert.Equal(t, 2, page)
	assert.Zero(t, received)

	_, _, err = parseSearchCursor("x:1")
	assert.Error(t, err)
}
