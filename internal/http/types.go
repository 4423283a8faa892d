package http

import (
	"github.com/fyrsmithlabs/coachd/internal/coaching"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// GenerateResponse is the response body for POST /api/v1/insights/generate.
type GenerateResponse struct {
	Insights []coaching.Insight `json:"insights"`
	// Persisted is false when the insights were computed but not stored.
	Persisted bool `json:"persisted"`
}

// InsightsResponse is the response body for GET /api/v1/insights.
type InsightsResponse struct {
	Insights []coaching.Insight `json:"insights"`
}

// InsightFeedbackRequest is the request body for POST /api/v1/insights/:id/feedback.
type InsightFeedbackRequest struct {
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment,omitempty"`
}

// TrackResponse is the response body for POST /api/v1/interactions.
type TrackResponse struct {
	ID string `json:"id"`
}
