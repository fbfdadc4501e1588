// Package metrics defines the Prometheus metric collectors used across the
// indexer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexer.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	PostingsAddedTotal   prometheus.Counter
	PostingsNoopTotal    prometheus.Counter
	LookupsTotal         *prometheus.CounterVec
	PostingListLength    prometheus.Histogram
	StoreOpsTotal        *prometheus.CounterVec
	StoreOpDuration      *prometheus.HistogramVec
	IngestEventsTotal    *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg registers
// with the Prometheus default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PostingsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iidx_postings_added_total",
				Help: "Total (doc, term) pairs that grew a posting list.",
			},
		),
		PostingsNoopTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iidx_postings_noop_total",
				Help: "Total (doc, term) pairs that were already present.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iidx_lookups_total",
				Help: "Total term lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		PostingListLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "iidx_posting_list_length",
				Help:    "Length of posting lists written back to the store.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iidx_store_operations_total",
				Help: "Store operations by backend, operation, and status.",
			},
			[]string{"backend", "op", "status"},
		),
		StoreOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iidx_store_operation_duration_seconds",
				Help:    "Store operation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"backend", "op"},
		),
		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iidx_ingest_events_total",
				Help: "Posting events consumed from Kafka by status (indexed, invalid, failed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PostingsAddedTotal,
		m.PostingsNoopTotal,
		m.LookupsTotal,
		m.PostingListLength,
		m.StoreOpsTotal,
		m.StoreOpDuration,
		m.IngestEventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g serves
// the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
