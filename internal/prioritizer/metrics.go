package prioritizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels how a prioritization finished.
type Outcome string

const (
	OutcomeReranked        Outcome = "reranked"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeFallbackError   Outcome = "fallback_error"
	OutcomeFallbackTimeout Outcome = "fallback_timeout"
	OutcomeFallbackInvalid Outcome = "fallback_invalid"
	OutcomeFallbackPanic   Outcome = "fallback_panic"
)

// Fallback reports whether the deterministic ordering was used after a failed re-rank.
func (o Outcome) Fallback() bool {
	switch o {
	case OutcomeFallbackError, OutcomeFallbackTimeout, OutcomeFallbackInvalid, OutcomeFallbackPanic:
		return true
	}
	return false
}

var (
	// OutcomesTotal counts prioritizations by outcome.
	// Labels: outcome (reranked, skipped, fallback_error, fallback_timeout, fallback_invalid, fallback_panic)
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "prioritizer",
			Name:      "outcomes_total",
			Help:      "Total number of insight prioritizations by outcome",
		},
		[]string{"outcome"},
	)

	// RerankDuration tracks gateway re-rank latency, including timeouts.
	RerankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coachd",
			Subsystem: "prioritizer",
			Name:      "rerank_duration_seconds",
			Help:      "Duration of gateway re-rank calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
