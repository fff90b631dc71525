package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector exported by the service.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Click recording
	ClicksRecordedTotal        prometheus.Counter
	ClickRecordFailures        *prometheus.CounterVec
	EarningsTotal              prometheus.Counter
	PartialAggregationFailures *prometheus.CounterVec

	// Link registry
	LinksCreatedTotal   *prometheus.CounterVec
	CodeCollisionsTotal prometheus.Counter
	CacheLookupsTotal   *prometheus.CounterVec

	// Aggregation
	AggregationDuration       *prometheus.HistogramVec
	AggregationFailures       *prometheus.CounterVec
	ReconciliationDivergences *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkcash_http_request_duration_seconds",
				Help:    "HTTP request latency distribution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkcash_http_requests_active",
				Help: "Number of in-flight HTTP requests",
			},
		),
		ClicksRecordedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcash_clicks_recorded_total",
				Help: "Click events durably recorded",
			},
		),
		ClickRecordFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_click_record_failures_total",
				Help: "Click recordings that returned an error, by stage",
			},
			[]string{"stage"},
		),
		EarningsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcash_earnings_total",
				Help: "Sum of earnings attributed to recorded clicks",
			},
		),
		PartialAggregationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_partial_aggregation_failures_total",
				Help: "Best-effort counter updates that failed, by dimension",
			},
			[]string{"dimension"},
		),
		LinksCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_links_created_total",
				Help: "Links created, by code source",
			},
			[]string{"source"},
		),
		CodeCollisionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcash_code_collisions_total",
				Help: "Generated codes that were already taken",
			},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_code_cache_lookups_total",
				Help: "Code cache lookups, by result",
			},
			[]string{"result"},
		),
		AggregationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkcash_aggregation_duration_seconds",
				Help:    "Time spent building analytics views",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"view"},
		),
		AggregationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_aggregation_failures_total",
				Help: "Analytics views that failed because the store was unavailable",
			},
			[]string{"view"},
		),
		ReconciliationDivergences: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcash_reconciliation_divergences_total",
				Help: "Counters found to diverge from the click log, by scope",
			},
			[]string{"scope"},
		),
	}
}

// NewUnregistered returns collectors bound to a private registry. Useful
// when the caller does not scrape them, e.g. in tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
