// Package metrics defines the Prometheus metric collectors for the dynamic
// translation model and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the translation model.
type Metrics struct {
	QueriesTotal       prometheus.Counter
	QueryLatency       prometheus.Histogram
	RulesReturned      prometheus.Histogram
	SpansSampledTotal  prometheus.Counter
	SpansPrunedTotal   prometheus.Counter
	RuleCacheHitsTotal prometheus.Counter
	SampleExhausted    prometheus.Counter
	IndexSentences     prometheus.Gauge
	VocabularySize     prometheus.Gauge
}

// New creates and registers all translation model metrics.
func New() *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_queries_total",
				Help: "Total number of rule queries processed.",
			},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tm_query_duration_seconds",
				Help:    "Rule query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		RulesReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tm_rules_returned",
				Help:    "Number of scored rules returned per query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SpansSampledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_spans_sampled_total",
				Help: "Source spans sampled from the suffix array.",
			},
		),
		SpansPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_spans_pruned_total",
				Help: "Source spans skipped via miss propagation.",
			},
		),
		RuleCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_rule_cache_hits_total",
				Help: "Unigram spans served from the precomputed rule cache.",
			},
		),
		SampleExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_spans_empty_total",
				Help: "Source spans with zero suffix-array hits.",
			},
		),
		IndexSentences: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tm_index_sentences",
				Help: "Number of sentence pairs in the loaded index.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tm_vocabulary_size",
				Help: "Current vocabulary size, including query-time additions.",
			},
		),
	}
	prometheus.MustRegister(
		m.QueriesTotal,
		m.QueryLatency,
		m.RulesReturned,
		m.SpansSampledTotal,
		m.SpansPrunedTotal,
		m.RuleCacheHitsTotal,
		m.SampleExhausted,
		m.IndexSentences,
		m.VocabularySize,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
