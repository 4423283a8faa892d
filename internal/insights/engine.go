// Package insights turns a user's recent records into a short, prioritized
// list of coaching insights and keeps them for later retrieval.
//
// The Engine runs every analyzer against the same read-only context in
// parallel, merges their candidates in analyzer order, hands them to the
// prioritizer and persists the result. A failing or panicking analyzer only
// loses its own candidates.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/analysis"
	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/logging"
	"github.com/fyrsmithlabs/coachd/internal/prioritizer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/fyrsmithlabs/coachd/internal/insights"

// DefaultRetention is how long an insight stays active when none is configured.
const DefaultRetention = 7 * 24 * time.Hour

// ErrPersist is returned, alongside the computed insights, when they could
// not be stored.
var ErrPersist = errors.New("persist insights")

// Options configures an Engine.
type Options struct {
	Analyzers   []analysis.Analyzer
	Prioritizer *prioritizer.Prioritizer
	Repository  *Repository
	Loader      *Loader
	Retention   time.Duration
	Logger      *zap.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Engine generates coaching insights.
type Engine struct {
	analyzers   []analysis.Analyzer
	prioritizer *prioritizer.Prioritizer
	repo        *Repository
	loader      *Loader
	retention   time.Duration
	log         *logging.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEngine creates an engine. Analyzers, Prioritizer and Repository are
// required; Loader is only needed by GenerateForUser.
func NewEngine(opts Options) (*Engine, error) {
	if len(opts.Analyzers) == 0 {
		return nil, errors.New("at least one analyzer is required")
	}
	if opts.Prioritizer == nil {
		return nil, errors.New("prioritizer is required")
	}
	if opts.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		analyzers:   opts.Analyzers,
		prioritizer: opts.Prioritizer,
		repo:        opts.Repository,
		loader:      opts.Loader,
		retention:   opts.Retention,
		log:         logging.Wrap(opts.Logger.Named("insights")),
		tracer:      otel.Tracer(instrumentationName),
		now:         opts.Now,
	}, nil
}

// GenerateForUser loads the user's context and generates insights from it.
func (e *Engine) GenerateForUser(ctx context.Context, userID string) ([]coaching.Insight, error) {
	if e.loader == nil {
		return nil, errors.New("engine has no context loader")
	}
	if err := coaching.ValidateUserID(userID); err != nil {
		return nil, err
	}
	c, err := e.loader.Load(ctx, userID, e.now().UTC())
	if err != nil {
		return nil, err
	}
	return e.GenerateCoachingInsights(ctx, c)
}

// GenerateCoachingInsights returns at most the prioritizer's limit of valid
// insights for c. When persisting fails after one retry the insights are
// still returned together with an error wrapping ErrPersist.
func (e *Engine) GenerateCoachingInsights(ctx context.Context, c *coaching.CoachingContext) ([]coaching.Insight, error) {
	if c == nil {
		return nil, &coaching.ValidationError{Field: "context", Reason: "required"}
	}
	userID := c.Profile.UserID
	if err := coaching.ValidateUserIDField("profile.userId", userID); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { GenerationDuration.Observe(time.Since(start).Seconds()) }()

	ctx = logging.WithUserID(ctx, userID)
	ctx, span := e.tracer.Start(ctx, "insights.Generate", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("meals", len(c.Meals)),
		attribute.Int("energy", len(c.Energy)),
	))
	defer span.End()

	candidates := e.stamp(ctx, userID, e.runAnalyzers(ctx, c))
	ranked, outcome := e.prioritizer.Prioritize(ctx, c.Profile, candidates)
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("selected", len(ranked)),
		attribute.String("prioritizer.outcome", string(outcome)),
	)

	if err := e.persist(ctx, ranked); err != nil {
		GenerationsTotal.WithLabelValues("persist_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		e.log.Error(ctx, "failed to persist insights", zap.Int("count", len(ranked)), zap.Error(err))
		return ranked, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	GenerationsTotal.WithLabelValues("ok").Inc()

	e.log.Info(ctx, "insights generated",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(ranked)),
		zap.String("prioritizer_outcome", string(outcome)))
	return ranked, nil
}

// runAnalyzers fans the analyzers out and merges their output in analyzer
// order. c is shared read-only.
func (e *Engine) runAnalyzers(ctx context.Context, c *coaching.CoachingContext) []coaching.Insight {
	ctx, span := e.tracer.Start(ctx, "insights.runAnalyzers")
	defer span.End()

	results := make([][]coaching.Insight, len(e.analyzers))
	var g errgroup.Group
	for i, a := range e.analyzers {
		g.Go(func() error {
			results[i] = e.analyze(ctx, a, c)
			return nil
		})
	}
	_ = g.Wait()

	var merged []coaching.Insight
	for i, r := range results {
		CandidatesTotal.WithLabelValues(e.analyzers[i].Name()).Add(float64(len(r)))
		e.log.Trace(ctx, "analyzer finished",
			zap.String("analyzer", e.analyzers[i].Name()), zap.Int("candidates", len(r)))
		merged = append(merged, r...)
	}
	return merged
}

func (e *Engine) analyze(ctx context.Context, a analysis.Analyzer, c *coaching.CoachingContext) (out []coaching.Insight) {
	defer func() {
		if r := recover(); r != nil {
			AnalyzerPanicsTotal.WithLabelValues(a.Name()).Inc()
			e.log.Error(ctx, "analyzer panicked",
				zap.String("analyzer", a.Name()),
				zap.Any("panic", r))
			out = nil
		}
	}()
	return a.Analyze(c)
}

// stamp assigns identity and lifetime to candidates and drops invalid ones.
func (e *Engine) stamp(ctx context.Context, userID string, candidates []coaching.Insight) []coaching.Insight {
	now := e.now().UTC()
	out := make([]coaching.Insight, 0, len(candidates))
	for _, in := range candidates {
		if err := in.Validate(); err != nil {
			DroppedTotal.Inc()
			e.log.Warn(ctx, "dropping invalid insight",
				zap.String("source", in.Source),
				zap.String("title", in.Title),
				zap.Error(err))
			continue
		}
		in.ID = uuid.NewString()
		in.UserID = userID
		in.CreatedAt = now
		in.ExpiresAt = now.Add(e.retention)
		in.Feedback = nil
		out = append(out, in)
	}
	return out
}

func (e *Engine) persist(ctx context.Context, insights []coaching.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	err := e.repo.Save(ctx, insights)
	if err == nil {
		return nil
	}
	e.log.Warn(ctx, "persisting insights failed, retrying", zap.Error(err))
	return e.repo.Save(ctx, insights)
}

// Repository returns the engine's insight repository.
func (e *Engine) Repository() *Repository { return e.repo }
