package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Refresh cycle metrics
	RefreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_refresh_cycles_total",
			Help: "Total number of refresh cycles by the trigger that started them",
		},
		[]string{"trigger"},
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conduit_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RefreshCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conduit_refresh_coalesced_total",
			Help: "Triggers folded into an already pending refresh cycle",
		},
	)

	LastRefreshTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conduit_last_refresh_timestamp_seconds",
			Help: "Unix time of the last completed refresh cycle",
		},
	)

	// Per-kind metrics
	FetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_fetch_failures_total",
			Help: "Total number of failed collection fetches by kind",
		},
		[]string{"kind"},
	)

	RecordsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_records_dropped_total",
			Help: "Records discarded during normalization by kind",
		},
		[]string{"kind"},
	)

	PersistFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_persist_failures_total",
			Help: "Failed cache writes by kind",
		},
		[]string{"kind"},
	)

	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conduit_entities",
			Help: "Entities in the current snapshot by kind",
		},
		[]string{"kind"},
	)

	SnapshotAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conduit_snapshot_age_seconds",
			Help: "Seconds since the current snapshot was refreshed",
		},
	)

	// Write-through metrics
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_writes_total",
			Help: "Apply and Remove calls by kind, operation and outcome",
		},
		[]string{"kind", "op", "status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conduit_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RefreshCyclesTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(RefreshCoalesced)
	prometheus.MustRegister(LastRefreshTimestamp)
	prometheus.MustRegister(FetchFailuresTotal)
	prometheus.MustRegister(RecordsDroppedTotal)
	prometheus.MustRegister(PersistFailuresTotal)
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(SnapshotAge)
	prometheus.MustRegister(WritesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
