package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retriever"

// Query outcomes used as the "result" label.
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultError = "error"
)

// Collector holds all Prometheus collectors for a database.
type Collector struct {
	registry *prometheus.Registry

	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       prometheus.Histogram
	SearchResultsCount  prometheus.Histogram
	CandidateCount      *prometheus.HistogramVec
	IndexRebuildsTotal  prometheus.Counter
	IndexCacheHitsTotal prometheus.Counter
	IndexDocuments      prometheus.Gauge
	RecordsIngested     prometheus.Counter
	RecordsReembedded   prometheus.Counter
}

// New creates a Collector and registers its metrics on registry.
// A nil registry selects a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_queries_total",
				Help:      "Total hybrid searches by result (ok, empty, error).",
			},
			[]string{"result"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Hybrid search latency in seconds, including index rebuilds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results_count",
				Help:      "Number of fused results returned per search.",
				Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
			},
		),
		CandidateCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_candidates_count",
				Help:      "Number of candidates produced per search by each retrieval method.",
				Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
			},
			[]string{"source"},
		),
		IndexRebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lexical_index_rebuilds_total",
				Help:      "Total lexical index rebuilds.",
			},
		),
		IndexCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lexical_index_cache_hits_total",
				Help:      "Total searches served by the retained lexical index.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lexical_index_documents",
				Help:      "Documents in the most recently used lexical index.",
			},
		),
		RecordsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_ingested_total",
				Help:      "Total records stored by ingestion.",
			},
		),
		RecordsReembedded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_reembedded_total",
				Help:      "Total records whose vector was replaced.",
			},
		),
	}

	for _, collector := range []prometheus.Collector{
		c.SearchQueriesTotal,
		c.SearchLatency,
		c.SearchResultsCount,
		c.CandidateCount,
		c.IndexRebuildsTotal,
		c.IndexCacheHitsTotal,
		c.IndexDocuments,
		c.RecordsIngested,
		c.RecordsReembedded,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus scrape HTTP handler for the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordIngested counts records stored by an ingestion run.
func (c *Collector) RecordIngested(n int) {
	c.RecordsIngested.Add(float64(n))
}

// RecordReembedded counts records updated by a re-embedding run.
func (c *Collector) RecordReembedded(n int) {
	c.RecordsReembedded.Add(float64(n))
}

// NewSearchMonitor returns a monitor for a single search call.
func (c *Collector) NewSearchMonitor() search.SearchMonitor {
	return &searchMonitor{collector: c}
}

// Serve exposes the handler on addr under /metrics until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down metrics server", "addr", addr, "err", err)
		}
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// searchMonitor records one search call. Not safe for reuse across calls.
type searchMonitor struct {
	collector *Collector
	start     time.Time
}

var _ search.SearchMonitor = (*searchMonitor)(nil)

func (m *searchMonitor) Start(_ string, _ core.ScopeFilter) {
	m.start = time.Now()
}

func (m *searchMonitor) AfterIndexAcquired(_ uint64, documents int, rebuilt bool) {
	if rebuilt {
		m.collector.IndexRebuildsTotal.Inc()
	} else {
		m.collector.IndexCacheHitsTotal.Inc()
	}
	m.collector.IndexDocuments.Set(float64(documents))
}

func (m *searchMonitor) AfterDenseSearch(results []core.ScoredResult) {
	m.collector.CandidateCount.WithLabelValues(core.SourceDense.String()).Observe(float64(len(results)))
}

func (m *searchMonitor) AfterLexicalSearch(results []core.ScoredResult) {
	m.collector.CandidateCount.WithLabelValues(core.SourceLexical.String()).Observe(float64(len(results)))
}

func (m *searchMonitor) AfterFusion(_ []core.FusedResult) {}

func (m *searchMonitor) Failed(_ error) {
	m.collector.SearchQueriesTotal.WithLabelValues(ResultError).Inc()
	m.observeLatency()
}

func (m *searchMonitor) Finish(results []core.FusedResult) {
	result := ResultOK
	if len(results) == 0 {
		result = ResultEmpty
	}
	m.collector.SearchQueriesTotal.WithLabelValues(result).Inc()
	m.collector.SearchResultsCount.Observe(float64(len(results)))
	m.observeLatency()
}

func (m *searchMonitor) observeLatency() {
	if m.start.IsZero() {
		return
	}
	m.collector.SearchLatency.Observe(time.Since(m.start).Seconds())
}
