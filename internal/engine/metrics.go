package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/reaper/internal/killplan"
	"github.com/seantiz/reaper/internal/model"
)

// Command outcome label values.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeTimedOut = "timed_out"
)

var (
	resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_results_total",
			Help: "Finished reaps by backend and result.",
		},
		[]string{"backend", "result"},
	)

	activeReaps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reaper_active_reaps",
			Help: "Number of reaps currently being enforced.",
		},
	)

	reapDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reaper_reap_seconds",
			Help:    "Time from enforcement start to result, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"backend"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_commands_total",
			Help: "Backend commands issued, by backend, phase and outcome.",
		},
		[]string{"backend", "phase", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(resultsTotal)
	prometheus.MustRegister(activeReaps)
	prometheus.MustRegister(reapDuration)
	prometheus.MustRegister(commandsTotal)

	results := []string{
		killplan.CompletedBeforeDeadline.String(),
		killplan.KilledAtHardDeadline.String(),
		killplan.CleanupTimeout.String(),
		model.StatusFailed,
	}
	for _, b := range model.Backends {
		for _, r := range results {
			resultsTotal.WithLabelValues(string(b), r)
		}
	}
}
