// Package metrics holds the Prometheus collectors shared by the finex
// binaries.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds every collector. Obtain it through Get.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheEntries     prometheus.Gauge

	BackendCallDuration *prometheus.HistogramVec
	BackendErrorsTotal  *prometheus.CounterVec

	LedgerMutationsTotal *prometheus.CounterVec

	RateLimitRejectionsTotal prometheus.Counter
	SuspiciousRequestsTotal  prometheus.Counter

	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
}

// Get registers the collectors on first use and returns them.
//
// Registration goes through sync.Once so that every package can call Get
// without tripping duplicate registration panics.
//
// All metrics are prefixed with "finex_".
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_http_requests_total",
					Help: "Total HTTP requests by route pattern and status code",
				},
				[]string{"route", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "finex_http_request_duration_seconds",
					Help:    "HTTP request latency by route pattern",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),

			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_cache_hits_total",
					Help: "Query cache hits by query key",
				},
				[]string{"query"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_cache_misses_total",
					Help: "Query cache misses by query key",
				},
				[]string{"query"},
			),
			CacheEntries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "finex_cache_entries",
					Help: "Current number of cached query results",
				},
			),

			BackendCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "finex_backend_call_duration_seconds",
					Help:    "Backend RPC latency by method",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method"},
			),
			BackendErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_backend_errors_total",
					Help: "Backend RPC failures by method and error code",
				},
				[]string{"method", "code"},
			),

			LedgerMutationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_ledger_mutations_total",
					Help: "Successful ledger mutations by kind",
				},
				[]string{"kind"},
			),

			RateLimitRejectionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "finex_rate_limit_rejections_total",
					Help: "Requests rejected by the rate limiter",
				},
			),
			SuspiciousRequestsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "finex_suspicious_requests_total",
					Help: "Requests flagged by the security middleware",
				},
			),

			EventsPublishedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_events_published_total",
					Help: "Ledger events published by routing key and outcome",
				},
				[]string{"routing_key", "outcome"},
			),
			EventsConsumedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finex_events_consumed_total",
					Help: "Ledger events consumed by consumer and outcome",
				},
				[]string{"consumer", "outcome"},
			),
		}
	})
	return globalMetrics
}
