package firecracker

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for soft-stop outcomes.
const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

var (
	softStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_firecracker_soft_stops_total",
			Help: "Ctrl-Alt-Del requests sent to Firecracker VMMs, by outcome.",
		},
		[]string{"outcome"},
	)

	teardownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reaper_firecracker_teardown_seconds",
			Help:    "Duration of CNI and namespace teardown for a microVM, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	teardownErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_firecracker_teardown_errors_total",
			Help: "Teardowns that left at least one resource behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(softStopsTotal)
	prometheus.MustRegister(teardownDuration)
	prometheus.MustRegister(teardownErrorsTotal)

	softStopsTotal.WithLabelValues(outcomeOK)
	softStopsTotal.WithLabelValues(outcomeFailed)
}
