package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prospector_runs_started_total",
		Help: "Intelligence runs that passed the entry transition.",
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prospector_runs_finished_total",
		Help: "Intelligence runs by final outcome (complete, error, stale).",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prospector_stage_duration_seconds",
		Help:    "Duration of each pipeline stage in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"stage"})

	researchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prospector_research_failures_total",
		Help: "Research calls that failed and were skipped.",
	})
)

const outcomeStale = "stale"
