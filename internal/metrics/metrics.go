// Package metrics provides Prometheus metrics for the regs server
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "regs"

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Search metrics
	SearchRequestsTotal  *prometheus.CounterVec
	SearchDuration       *prometheus.HistogramVec
	SearchResults        prometheus.Histogram
	SearchFallbacksTotal prometheus.Counter
	SearchCacheHits      prometheus.Counter
	SearchCacheMisses    prometheus.Counter

	// Embedding metrics
	EmbeddingRequestsTotal *prometheus.CounterVec
	EmbeddingDuration      *prometheus.HistogramVec
	EmbeddingCacheHits     prometheus.Counter

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	TocEntries          *prometheus.GaugeVec
	TocEmbeddedEntries  *prometheus.GaugeVec

	// MCP tool metrics
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	ToolCallsInFlight prometheus.Gauge
}

// New creates metrics registered on reg. A nil reg gets a fresh registry,
// so tests can create as many instances as they like.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.SearchRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of TOC searches",
		},
		[]string{"mode", "status"},
	)

	m.SearchDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of TOC searches in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	m.SearchResults = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 20},
		},
	)

	m.SearchFallbacksTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fallbacks_total",
			Help:      "Searches that fell back to keyword ranking after an embedding failure",
		},
	)

	m.SearchCacheHits = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_hits_total",
			Help:      "Search response cache hits",
		},
	)

	m.SearchCacheMisses = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_misses_total",
			Help:      "Search response cache misses",
		},
	)

	m.EmbeddingRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider calls",
		},
		[]string{"provider", "status"},
	)

	m.EmbeddingDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Duration of embedding provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	m.EmbeddingCacheHits = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Query embeddings served from cache",
		},
	)

	m.DbOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_operations_total",
			Help:      "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.TocEntries = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toc_entries",
			Help:      "TOC entries per document",
		},
		[]string{"document"},
	)

	m.TocEmbeddedEntries = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toc_embedded_entries",
			Help:      "TOC entries carrying an embedding per document",
		},
		[]string{"document"},
	)

	m.ToolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	m.ToolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of MCP tool calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	m.ToolCallsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_calls_in_flight",
			Help:      "Number of MCP tool calls currently being processed",
		},
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordSearch records a completed search
func (m *Metrics) RecordSearch(mode string, results int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(mode, status(err)).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		m.SearchResults.Observe(float64(results))
	}
}

// RecordFallback counts a keyword fallback
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.SearchFallbacksTotal.Inc()
}

// RecordSearchCache counts a response cache lookup
func (m *Metrics) RecordSearchCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SearchCacheHits.Inc()
		return
	}
	m.SearchCacheMisses.Inc()
}

// RecordEmbedding records an embedding provider call
func (m *Metrics) RecordEmbedding(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmbeddingRequestsTotal.WithLabelValues(provider, status(err)).Inc()
	m.EmbeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordEmbeddingCacheHit counts a query embedding served from cache
func (m *Metrics) RecordEmbeddingCacheHit() {
	if m == nil {
		return
	}
	m.EmbeddingCacheHits.Inc()
}

// RecordDbOperation records a database operation
func (m *Metrics) RecordDbOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.DbOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDocumentStats sets the per-document entry gauges
func (m *Metrics) UpdateDocumentStats(documentID string, entries, embedded int) {
	if m == nil {
		return
	}
	m.TocEntries.WithLabelValues(documentID).Set(float64(entries))
	m.TocEmbeddedEntries.WithLabelValues(documentID).Set(float64(embedded))
}

// TrackTool marks a tool call in flight and returns a func that records its outcome
func (m *Metrics) TrackTool(tool string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.ToolCallsInFlight.Inc()
	return func(err error) {
		m.ToolCallsInFlight.Dec()
		m.ToolCallsTotal.WithLabelValues(tool, status(err)).Inc()
		m.ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	}
}
