// Package telemetry exports Prometheus metrics for ingestion and classification.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tender_radar"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Source metrics
	PagesFetched  *prometheus.CounterVec
	PageFailures  *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	Candidates    *prometheus.CounterVec
	TendersStored *prometheus.CounterVec

	// Classification metrics
	Verdicts               *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec

	// Run metrics
	RunDuration *prometheus.HistogramVec
	RunsTotal   *prometheus.CounterVec
}

// Provider owns a registry and the metrics registered on it. A nil *Provider is valid
// and records nothing.
type Provider struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewProvider registers all metrics on a fresh registry together with the Go and
// process collectors.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Provider{registry: reg, Metrics: initMetrics(promauto.With(reg))}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	if p == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initSourceMetrics(f, m)
	initClassificationMetrics(f, m)
	initRunMetrics(f, m)
	return m
}

func initSourceMetrics(f promauto.Factory, m *Metrics) {
	m.PagesFetched = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_fetched_total",
		Help:      "Result pages fetched per source",
	}, []string{"source"})

	m.PageFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_failures_total",
		Help:      "Pages abandoned after retries or parse errors",
	}, []string{"source"})

	m.FetchRetries = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_retries_total",
		Help:      "Page fetch retries after transient failures",
	}, []string{"source"})

	m.Candidates = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_total",
		Help:      "Candidates yielded by source connectors",
	}, []string{"source"})

	m.TendersStored = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenders_stored_total",
		Help:      "Tenders upserted, by outcome (new or updated)",
	}, []string{"source", "outcome"})
}

func initClassificationMetrics(f promauto.Factory, m *Metrics) {
	m.Verdicts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verdicts_total",
		Help:      "Verdicts produced, by method and relevance",
	}, []string{"method", "relevant"})

	m.ClassificationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "classification_duration_seconds",
		Help:      "Time to classify a single tender per tier",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"tier"})
}

func initRunMetrics(f promauto.Factory, m *Metrics) {
	m.RunDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of one source run",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"source"})

	m.RunsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Source runs, by success",
	}, []string{"source", "success"})
}

// RecordPage records a successfully fetched page and the candidates it held.
func (p *Provider) RecordPage(source string, items int) {
	if p == nil {
		return
	}
	p.Metrics.PagesFetched.WithLabelValues(source).Inc()
	p.Metrics.Candidates.WithLabelValues(source).Add(float64(items))
}

// RecordPageFailure records a page that was abandoned.
func (p *Provider) RecordPageFailure(source string) {
	if p == nil {
		return
	}
	p.Metrics.PageFailures.WithLabelValues(source).Inc()
}

// RecordRetry records a fetch retry.
func (p *Provider) RecordRetry(source string) {
	if p == nil {
		return
	}
	p.Metrics.FetchRetries.WithLabelValues(source).Inc()
}

// RecordUpsert records the outcome of storing a tender.
func (p *Provider) RecordUpsert(source string, created bool) {
	if p == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "new"
	}
	p.Metrics.TendersStored.WithLabelValues(source, outcome).Inc()
}

// RecordVerdict records a verdict and how long its tier took.
func (p *Provider) RecordVerdict(tier, method string, relevant bool, duration time.Duration) {
	if p == nil {
		return
	}
	rel := "false"
	if relevant {
		rel = "true"
	}
	p.Metrics.Verdicts.WithLabelValues(method, rel).Inc()
	p.Metrics.ClassificationDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordRun records a finished source run.
func (p *Provider) RecordRun(source string, success bool, duration time.Duration) {
	if p == nil {
		return
	}
	ok := "false"
	if success {
		ok = "true"
	}
	p.Metrics.RunDuration.WithLabelValues(source).Observe(duration.Seconds())
	p.Metrics.RunsTotal.WithLabelValues(source, ok).Inc()
}
