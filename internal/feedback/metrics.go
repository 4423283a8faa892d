package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InteractionsTotal counts newly recorded interactions.
	// Labels: type (food_scan, coaching, recipe_generation, blueprint_generation)
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "interactions_total",
			Help:      "Total number of recorded AI interactions",
		},
		[]string{"type"},
	)

	// AnomaliesTotal counts detected anomalies.
	// Labels: type (slow_response, high_token_usage, multiple_retries, low_confidence)
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "anomalies_total",
			Help:      "Total number of interaction anomalies detected",
		},
		[]string{"type"},
	)

	// FeedbackTotal counts attached feedback by rating.
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "feedback_total",
			Help:      "Total number of feedback submissions by rating",
		},
		[]string{"rating"},
	)

	// OpportunitiesTotal counts improvement opportunities by priority.
	OpportunitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "improvement_opportunities_total",
			Help:      "Total number of improvement opportunities opened",
		},
		[]string{"priority"},
	)

	// RetirementFlagsTotal counts clarification questions newly flagged for retirement.
	RetirementFlagsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "clarification_retirement_flags_total",
			Help:      "Total number of clarification questions flagged for retirement",
		},
	)

	// BookkeepingErrors counts swallowed best-effort write failures.
	// Labels: op (interaction, realtime, anomaly, clarification, opportunity, alert)
	BookkeepingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "feedback",
			Name:      "bookkeeping_errors_total",
			Help:      "Total number of best-effort feedback writes that failed",
		},
		[]string{"op"},
	)
)
