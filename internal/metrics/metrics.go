// Package metrics exposes Prometheus collectors for the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	TransportAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloryn_transport_attempts_total",
			Help: "Total number of remote run attempts by outcome class",
		},
		[]string{"class"},
	)

	TransportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veloryn_transport_duration_seconds",
			Help:    "Duration of remote run attempts in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
		},
	)

	StreamEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veloryn_stream_events_total",
			Help: "Total number of decoded stream events",
		},
	)

	// Ledger and breaker metrics
	RateLimitEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veloryn_rate_limit_events_total",
			Help: "Total number of rate-limit events recorded to the ledger",
		},
	)

	LedgerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloryn_ledger_errors_total",
			Help: "Total number of ledger storage errors by operation",
		},
		[]string{"operation"},
	)

	CircuitOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veloryn_circuit_open_total",
			Help: "Total number of runs deferred by an open circuit breaker",
		},
	)

	PacingDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veloryn_pacing_delay_seconds",
			Help:    "Pacing delay applied before remote calls in seconds",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 180, 240},
		},
	)

	// Extraction and validation metrics
	ExtractionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloryn_extraction_total",
			Help: "Total number of extraction attempts by strategy",
		},
		[]string{"strategy"},
	)

	ValidationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veloryn_validation_retries_total",
			Help: "Total number of full remote call retries caused by invalid content",
		},
	)

	// Market data metrics
	MarketDataRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloryn_market_data_requests_total",
			Help: "Total number of market data API requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veloryn_runs_total",
			Help: "Total number of analysis runs by status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veloryn_run_duration_seconds",
			Help:    "Duration of complete analysis runs in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)

	PromotionsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veloryn_promotions_published_total",
			Help: "Total number of promotion messages published",
		},
	)
)
