package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "liquidsentinel"

// Rate limiter metrics.
var (
	AdmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_admissions_total",
			Help:      "Total number of requests admitted by the budget gate",
		},
	)

	AdmittedWeightTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_admitted_weight_total",
			Help:      "Total request weight admitted by the budget gate",
		},
	)

	AdmitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_admit_wait_seconds",
			Help:      "Time callers spent waiting for admission",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	WeightConsumed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_weight_consumed",
			Help:      "Weight consumed inside the current rolling window",
		},
	)

	ExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_exhausted_total",
			Help:      "Number of times the server rejected a request with 429",
		},
	)
)

// Info API metrics.
var (
	InfoRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "info_requests_total",
			Help:      "Total info API calls by request type and outcome",
		},
		[]string{"type", "outcome"},
	)

	InfoRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "info_request_duration_seconds",
			Help:      "Info API call duration including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)
)

// Refresh cycle metrics.
var (
	RefreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles by result",
		},
		[]string{"result"}, // "ok" / "partial" / "failed"
	)

	AccountsFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_accounts_failed",
			Help:      "Accounts that failed in the most recent refresh cycle",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AdmissionsTotal,
			AdmittedWeightTotal,
			AdmitWaitSeconds,
			WeightConsumed,
			ExhaustedTotal,
			InfoRequestsTotal,
			InfoRequestDuration,
			RefreshCyclesTotal,
			AccountsFailed,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
