package feedback

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
)

// InteractionType classifies an AI gateway call.
type InteractionType string

const (
	InteractionFoodScan            InteractionType = "food_scan"
	InteractionCoaching            InteractionType = "coaching"
	InteractionRecipeGeneration    InteractionType = "recipe_generation"
	InteractionBlueprintGeneration InteractionType = "blueprint_generation"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionFoodScan, InteractionCoaching, InteractionRecipeGeneration, InteractionBlueprintGeneration:
		return true
	}
	return false
}

// ClarificationQuestion is a follow-up question asked of the user.
type ClarificationQuestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// InteractionRequest is what was sent to the gateway. Model is the tier name.
type InteractionRequest struct {
	Input                  string                  `json:"input"`
	Context                map[string]string       `json:"context,omitempty"`
	Model                  string                  `json:"model"`
	ClarificationQuestions []ClarificationQuestion `json:"clarificationQuestions,omitempty"`
}

// InteractionResponse is what the gateway returned.
type InteractionResponse struct {
	Output           string   `json:"output"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
	TokensUsed       *int     `json:"tokensUsed,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

// InteractionMetrics are the call-level measurements. ErrorRate is 0 or 1.
type InteractionMetrics struct {
	ResponseTimeMs int64    `json:"responseTimeMs"`
	ErrorRate      int      `json:"errorRate"`
	RetryCount     int      `json:"retryCount"`
	CacheHit       bool     `json:"cacheHit"`
	EdgeCases      []string `json:"edgeCases,omitempty"`
}

// AIInteraction is one recorded gateway call.
type AIInteraction struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Timestamp time.Time           `json:"timestamp"`
	Type      InteractionType     `json:"type"`
	Request   InteractionRequest  `json:"request"`
	Response  InteractionResponse `json:"response"`
	Metrics   InteractionMetrics  `json:"metrics"`
	Feedback  *UserFeedback       `json:"feedback,omitempty"`

	// Aggregated is set once the interaction is folded into the realtime
	// metrics.
	Aggregated bool `json:"aggregated,omitempty"`
}

// Rating is the user's overall reaction.
type Rating string

const (
	RatingPositive Rating = "positive"
	RatingNeutral  Rating = "neutral"
	RatingNegative Rating = "negative"
)

// UserFeedback is a user's reaction to an interaction. Scores are 1-5.
type UserFeedback struct {
	Rating               Rating    `json:"rating"`
	Accuracy             *int      `json:"accuracy,omitempty"`
	Helpfulness          *int      `json:"helpfulness,omitempty"`
	ClarificationQuality *int      `json:"clarificationQuality,omitempty"`
	Text                 string    `json:"text,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// Negative reports whether the feedback should open an improvement opportunity.
func (f UserFeedback) Negative() bool {
	return f.Rating == RatingNegative || (f.Accuracy != nil && *f.Accuracy < 3)
}

// ClarificationMetric is the rolling effectiveness of one clarification question.
type ClarificationMetric struct {
	QuestionID      string    `json:"questionId"`
	Question        string    `json:"question,omitempty"`
	TimesAsked      int       `json:"timesAsked"`
	RatedCount      int       `json:"ratedCount"`
	AccuracySamples int       `json:"accuracySamples"`
	ThumbsUpRate    float64   `json:"thumbsUpRate"`
	ThumbsDownRate  float64   `json:"thumbsDownRate"`
	AccuracyImpact  float64   `json:"accuracyImpact"`
	ShouldRetire    bool      `json:"shouldRetire"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// Issue categorizes negative feedback.
type Issue string

const (
	IssueLowAccuracy          Issue = "low_accuracy"
	IssueNotHelpful           Issue = "not_helpful"
	IssueIncorrectInformation Issue = "incorrect_information"
	IssueConfusingResponse    Issue = "confusing_response"
	IssueOther                Issue = "other"
)

// OpportunityStatus is the review state of an improvement opportunity.
type OpportunityStatus string

// StatusPending is the only state this engine writes.
const StatusPending OpportunityStatus = "pending"

// ImprovementOpportunity is a negative-outcome case queued for human review.
type ImprovementOpportunity struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	InteractionID   string            `json:"interactionId"`
	InteractionType InteractionType   `json:"interactionType"`
	UserID          string            `json:"userId,omitempty"`
	Model           string            `json:"model,omitempty"`
	Issue           Issue             `json:"issue"`
	Priority        coaching.Priority `json:"priority"`
	Status          OpportunityStatus `json:"status"`
	Details         string            `json:"details,omitempty"`
}

// IssueCount is one row of a report's top issues.
type IssueCount struct {
	Issue Issue `json:"issue"`
	Count int   `json:"count"`
}

// ModelPerformanceReport aggregates one model tier over one period.
type ModelPerformanceReport struct {
	Model                 string       `json:"model"`
	ModelName             string       `json:"modelName,omitempty"`
	Period                Period       `json:"period"`
	GeneratedAt           time.Time    `json:"generatedAt"`
	Interactions          int          `json:"interactions"`
	SuccessRate           float64      `json:"successRate"`
	AvgResponseTimeMs     float64      `json:"avgResponseTimeMs"`
	AvgTokens             float64      `json:"avgTokens"`
	UserSatisfaction      float64      `json:"userSatisfaction"`
	EstimatedCost         float64      `json:"estimatedCost"`
	TopIssues             []IssueCount `json:"topIssues"`
	SuggestedImprovements []string     `json:"suggestedImprovements"`
}

// RealtimeMetrics is the shared aggregate updated on every interaction.
type RealtimeMetrics struct {
	TotalInteractions  int64                     `json:"totalInteractions"`
	ByType             map[InteractionType]int64 `json:"byType"`
	AvgResponseTimeMs  float64                   `json:"avgResponseTimeMs"`
	ErrorCount         int64                     `json:"errorCount"`
	HourlyDistribution [24]int64                 `json:"hourlyDistribution"`
	LastUpdated        time.Time                 `json:"lastUpdated"`
}

// AnomalyType names an anomaly check.
type AnomalyType string

const (
	AnomalySlowResponse    AnomalyType = "slow_response"
	AnomalyHighTokenUsage  AnomalyType = "high_token_usage"
	AnomalyMultipleRetries AnomalyType = "multiple_retries"
	AnomalyLowConfidence   AnomalyType = "low_confidence"
)

// AnomalyRecord is one anomaly log entry, keyed by interaction id.
type AnomalyRecord struct {
	InteractionID string        `json:"interactionId"`
	UserID        string        `json:"userId"`
	Types         []AnomalyType `json:"types"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ABStatus is the lifecycle state of an A/B test.
type ABStatus string

// ABStatusRunning is assigned on registration.
const ABStatusRunning ABStatus = "running"

// ABVariant is one arm of an A/B test.
type ABVariant struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// ABTest is a registered prompt experiment definition.
type ABTest struct {
	Name             string      `json:"name"`
	Variants         []ABVariant `json:"variants"`
	TargetSampleSize int         `json:"targetSampleSize"`
	Status           ABStatus    `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Period selects a report lookback window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Lookback returns the window length of p.
func (p Period) Lookback() (time.Duration, error) {
	switch p {
	case PeriodDaily:
		return 24 * time.Hour, nil
	case PeriodWeekly:
		return 7 * 24 * time.Hour, nil
	case PeriodMonthly:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, invalid("period", "must be daily, weekly or monthly, got %q", p)
	}
}

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ValidationError is shared with the coaching records so callers match one type.
type ValidationError = coaching.ValidationError

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func score(field string, v *int) error {
	if v != nil && (*v < 1 || *v > 5) {
		return invalid(field, "must be 1-5, got %d", *v)
	}
	return nil
}

// Validate checks the required interaction fields.
func (i AIInteraction) Validate() error {
	if err := coaching.ValidateUserID(i.UserID); err != nil {
		return err
	}
	if !i.Type.Valid() {
		return invalid("type", "unknown interaction type %q", i.Type)
	}
	if i.Metrics.ErrorRate != 0 && i.Metrics.ErrorRate != 1 {
		return invalid("metrics.errorRate", "must be 0 or 1, got %d", i.Metrics.ErrorRate)
	}
	if i.Metrics.ResponseTimeMs < 0 {
		return invalid("metrics.responseTimeMs", "must not be negative")
	}
	if i.Metrics.RetryCount < 0 {
		return invalid("metrics.retryCount", "must not be negative")
	}
	if i.Response.TokensUsed != nil && *i.Response.TokensUsed < 0 {
		return invalid("response.tokensUsed", "must not be negative")
	}
	if c := i.Response.Confidence; c != nil && (*c < 0 || *c > 1) {
		return invalid("response.confidence", "must be 0-1, got %g", *c)
	}
	for n, q := range i.Request.ClarificationQuestions {
		if q.ID == "" {
			return invalid(fmt.Sprintf("request.clarificationQuestions[%d].id", n), "required")
		}
	}
	return nil
}

// Validate checks the rating and score ranges.
func (f UserFeedback) Validate() error {
	switch f.Rating {
	case RatingPositive, RatingNeutral, RatingNegative:
	default:
		return invalid("rating", "must be positive, neutral or negative, got %q", f.Rating)
	}
	if err := score("accuracy", f.Accuracy); err != nil {
		return err
	}
	if err := score("helpfulness", f.Helpfulness); err != nil {
		return err
	}
	return score("clarificationQuality", f.ClarificationQuality)
}

// Validate checks an A/B test definition.
func (t ABTest) Validate() error {
	if t.Name == "" {
		return invalid("name", "required")
	}
	if len(t.Variants) < 2 {
		return invalid("variants", "at least 2 variants required")
	}
	seen := map[string]bool{}
	for n, v := range t.Variants {
		if v.Name == "" {
			return invalid(fmt.Sprintf("variants[%d].name", n), "required")
		}
		if seen[v.Name] {
			return invalid(fmt.Sprintf("variants[%d].name", n), "duplicate variant %q", v.Name)
		}
		seen[v.Name] = true
	}
	if t.TargetSampleSize <= 0 {
		return invalid("targetSampleSize", "must be positive")
	}
	return nil
}
