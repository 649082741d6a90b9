package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Independent(t *testing.T) {
	a := NewProvider()
	b := NewProvider()
	require.NotNil(t, a.Metrics)
	require.NotNil(t, b.Metrics)
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestRecordPage(t *testing.T) {
	p := NewProvider()
	p.RecordPage("api_a", 10)
	p.RecordPage("api_a", 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.Metrics.PagesFetched.WithLabelValues("api_a")))
	assert.Equal(t, 15.0, testutil.ToFloat64(p.Metrics.Candidates.WithLabelValues("api_a")))
}

func TestRecordUpsertAndVerdict(t *testing.T) {
	p := NewProvider()
	p.RecordUpsert("html_b", true)
	p.RecordUpsert("html_b", false)
	p.RecordUpsert("html_b", false)
	p.RecordVerdict("primary", "primary", true, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.TendersStored.WithLabelValues("html_b", "new")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.Metrics.TendersStored.WithLabelValues("html_b", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Verdicts.WithLabelValues("primary", "true")))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.NotPanics(t, func() {
		p.RecordPage("x", 1)
		p.RecordPageFailure("x")
		p.RecordRetry("x")
		p.RecordUpsert("x", true)
		p.RecordVerdict("fallback", "fallback", false, time.Millisecond)
		p.RecordRun("x", true, time.Second)
	})
}

func TestHandler(t *testing.T) {
	p := NewProvider()
	p.RecordRun("rss", true, time.Second)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tender_radar_runs_total")
}
