// Package telemetry exposes Prometheus counters and gauges around
// validator and backtester throughput (§4.17), registered once at
// process start and updated from internal/validator's per-round task
// closures and run timers and the engine's event loop. Grounded on the base repository's
// `prometheus.MustRegister`-in-`init()` idiom and
// chidi150c-coinbase/metrics.go's one-CounterVec-per-concern layout;
// narrowed to the three series SPEC_FULL.md §4.17 names.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PermutationsCompleted counts permutation rounds drained by the
	// executor, labeled by algorithm (masters|romano_wolf).
	PermutationsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validator_permutations_completed_total",
			Help: "Permutation rounds completed by the validator.",
		},
		[]string{"algorithm"},
	)

	// RunDuration observes the wall-clock duration of a complete
	// validator run (preparer + algorithm), labeled by algorithm.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validator_run_duration_seconds",
			Help:    "Wall-clock duration of a validator run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"algorithm"},
	)

	// BacktesterEventsProcessed counts bar-level events the backtester
	// engine's event loop has driven through a strategy's hooks.
	BacktesterEventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_events_processed_total",
			Help: "Bar events processed by the backtester engine.",
		},
		[]string{"timeframe"},
	)
)

func init() {
	prometheus.MustRegister(PermutationsCompleted, RunDuration, BacktesterEventsProcessed)
}

// Handler returns the HTTP handler that serves the registered metrics
// in the Prometheus text exposition format, mounted at /metrics by
// internal/api.Server when telemetry is enabled.
func Handler() http.Handler {
	return promhttp.Handler()
}
