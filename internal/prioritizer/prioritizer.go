// Package prioritizer ranks candidate insights and bounds the output list.
//
// It first asks the gateway for a top-N ordering of the candidate ids. Any
// gateway error, timeout, malformed reply or panic falls back to a stable sort
// by priority with emission order as tie-break. Prioritize never returns an
// error.
package prioritizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/coachd/internal/prioritizer"

// DefaultMaxInsights bounds the output when no limit is configured.
const DefaultMaxInsights = 5

// Prioritizer orders candidate insights.
type Prioritizer struct {
	client  gateway.Client
	tier    string
	timeout time.Duration
	max     int
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a prioritizer. A nil client always uses the fallback ordering.
func New(client gateway.Client, cfg config.InsightsConfig, logger *zap.Logger) *Prioritizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	max := cfg.MaxInsights
	if max <= 0 {
		max = DefaultMaxInsights
	}
	return &Prioritizer{
		client:  client,
		tier:    cfg.RerankTier,
		timeout: cfg.RerankTimeout,
		max:     max,
		logger:  logger.Named("prioritizer"),
		tracer:  otel.Tracer(instrumentationName),
	}
}

// Prioritize returns at most the configured number of insights in ranked
// order and the outcome that produced the ordering.
func (p *Prioritizer) Prioritize(ctx context.Context, profile coaching.UserProfile, candidates []coaching.Insight) ([]coaching.Insight, Outcome) {
	ctx, span := p.tracer.Start(ctx, "prioritizer.Prioritize",
		trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	defer span.End()

	ranked, outcome := p.prioritize(ctx, profile, candidates)

	span.SetAttributes(attribute.String("outcome", string(outcome)), attribute.Int("selected", len(ranked)))
	OutcomesTotal.WithLabelValues(string(outcome)).Inc()
	return ranked, outcome
}

func (p *Prioritizer) prioritize(ctx context.Context, profile coaching.UserProfile, candidates []coaching.Insight) ([]coaching.Insight, Outcome) {
	if len(candidates) <= 1 || p.client == nil {
		return Fallback(candidates, p.max), OutcomeSkipped
	}

	ids, err := p.rerank(ctx, profile, candidates)
	if err != nil {
		outcome := classify(err)
		p.logger.Warn("insight re-rank failed, using priority order",
			zap.String("user_id", profile.UserID),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return Fallback(candidates, p.max), outcome
	}

	byID := make(map[string]coaching.Insight, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	out := make([]coaching.Insight, 0, min(len(ids), p.max))
	for _, id := range ids {
		if len(out) == p.max {
			break
		}
		out = append(out, byID[id])
	}
	return out, OutcomeReranked
}

var (
	errInvalidRanking = errors.New("invalid ranking")
	errPanic          = errors.New("re-rank panicked")
)

func classify(err error) Outcome {
	switch {
	case errors.Is(err, errPanic):
		return OutcomeFallbackPanic
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeFallbackTimeout
	case errors.Is(err, errInvalidRanking), errors.Is(err, gateway.ErrInvalidOutput):
		return OutcomeFallbackInvalid
	default:
		return OutcomeFallbackError
	}
}

type rankResponse struct {
	Ranking []string `json:"ranking"`
}

type rerankResult struct {
	ids []string
	err error
}

// rerank runs the gateway call in its own goroutine so the timeout holds even
// if the client ignores its context.
func (p *Prioritizer) rerank(ctx context.Context, profile coaching.UserProfile, candidates []coaching.Insight) ([]string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { RerankDuration.Observe(time.Since(start).Seconds()) }()

	done := make(chan rerankResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- rerankResult{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		ids, err := p.callGateway(ctx, profile, candidates)
		done <- rerankResult{ids: ids, err: err}
	}()

	select {
	case res := <-done:
		return res.ids, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Prioritizer) callGateway(ctx context.Context, profile coaching.UserProfile, candidates []coaching.Insight) ([]string, error) {
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c.ID] = true
	}

	res, _, err := gateway.CompleteJSON(ctx, p.client, gateway.Request{
		Tier:   p.tier,
		System: "You rank coaching insights by expected benefit to the user. Reply with JSON only.",
		Prompt: buildPrompt(profile, candidates, p.max),
	}, validRanking(valid))
	if err != nil {
		return nil, err
	}
	ranking, ok := res.Value()
	if !ok {
		return nil, res.Err()
	}
	return ranking.Ranking, nil
}

// validRanking accepts a non-empty list of distinct candidate ids.
func validRanking(valid map[string]bool) gateway.Validator[rankResponse] {
	return func(r rankResponse) error {
		if len(r.Ranking) == 0 {
			return fmt.Errorf("%w: empty", errInvalidRanking)
		}
		seen := make(map[string]bool, len(r.Ranking))
		for _, id := range r.Ranking {
			if !valid[id] {
				return fmt.Errorf("%w: unknown id %q", errInvalidRanking, id)
			}
			if seen[id] {
				return fmt.Errorf("%w: duplicate id %q", errInvalidRanking, id)
			}
			seen[id] = true
		}
		return nil
	}
}

func buildPrompt(profile coaching.UserProfile, candidates []coaching.Insight, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User primary goal: %s\n", orNone(profile.PrimaryGoal))
	if len(profile.SecondaryGoals) > 0 {
		fmt.Fprintf(&b, "Secondary goals: %s\n", strings.Join(profile.SecondaryGoals, ", "))
	}
	fmt.Fprintf(&b, "\nCandidate insights:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s type=%s priority=%s title=%q\n", c.ID, c.Type, c.Priority, c.Title)
	}
	fmt.Fprintf(&b, "\nReturn the ids of the %d most useful insights, best first, as {\"ranking\": [\"id\", ...]}. Use only ids from the list.", max)
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// Fallback orders candidates by priority (high first), keeping emission
// order among equal priorities, and truncates to max.
func Fallback(candidates []coaching.Insight, max int) []coaching.Insight {
	out := make([]coaching.Insight, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	if max >= 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
