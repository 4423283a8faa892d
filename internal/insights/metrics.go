package insights

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationsTotal counts engine runs by result.
	// Labels: result (ok, persist_failed)
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "insights",
			Name:      "generations_total",
			Help:      "Total number of insight generation runs by result",
		},
		[]string{"result"},
	)

	// CandidatesTotal counts insights emitted by each analyzer.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "insights",
			Name:      "candidates_total",
			Help:      "Total number of candidate insights by analyzer",
		},
		[]string{"analyzer"},
	)

	// AnalyzerPanicsTotal counts recovered analyzer panics.
	AnalyzerPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "insights",
			Name:      "analyzer_panics_total",
			Help:      "Total number of recovered analyzer panics",
		},
		[]string{"analyzer"},
	)

	// DroppedTotal counts candidates rejected by validation.
	DroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "insights",
			Name:      "dropped_total",
			Help:      "Total number of invalid candidate insights dropped",
		},
	)

	// GenerationDuration tracks end-to-end generation latency.
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coachd",
			Subsystem: "insights",
			Name:      "generation_duration_seconds",
			Help:      "Duration of insight generation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
