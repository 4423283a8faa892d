// Package scheduler runs the periodic maintenance task: model performance
// reports for each configured period and expiry of old insights.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// runTimeout bounds one scheduled run.
const runTimeout = 10 * time.Minute

var (
	// ModelSuccessRate is the success rate from the latest report.
	ModelSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coachd",
			Subsystem: "scheduler",
			Name:      "model_success_rate",
			Help:      "Success rate of each model tier in the latest performance report",
		},
		[]string{"model", "period"},
	)

	// ModelSatisfaction is the mean helpfulness from the latest report.
	ModelSatisfaction = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coachd",
			Subsystem: "scheduler",
			Name:      "model_user_satisfaction",
			Help:      "Mean helpfulness score of each model tier in the latest performance report",
		},
		[]string{"model", "period"},
	)

	// RunsTotal counts scheduled runs by result.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachd",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled maintenance runs by result",
		},
		[]string{"result"},
	)
)

// Reporter generates model performance reports.
type Reporter interface {
	GeneratePerformanceReport(ctx context.Context, period feedback.Period) ([]feedback.ModelPerformanceReport, error)
}

// Purger deletes expired insights.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs reports on a fixed interval until stopped.
//
// Start and Stop are safe for concurrent use.
type Scheduler struct {
	interval time.Duration
	periods  []feedback.Period
	reporter Reporter
	purger   Purger
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between runs. Defaults to 24 hours.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.interval = interval }
}

// WithPeriods sets the report periods generated on each run. Defaults to daily.
func WithPeriods(periods ...feedback.Period) Option {
	return func(s *Scheduler) { s.periods = periods }
}

// WithPurger enables expiry of old insights on each run.
func WithPurger(p Purger) Option {
	return func(s *Scheduler) { s.purger = p }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. It does not start until Start is called.
func New(reporter Reporter, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	s := &Scheduler{
		interval: 24 * time.Hour,
		periods:  []feedback.Period{feedback.PeriodDaily},
		reporter: reporter,
		now:      time.Now,
		logger:   logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	for _, p := range s.periods {
		if _, err := p.Lookback(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start launches the background loop. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("report scheduler started",
		zap.Duration("interval", s.interval),
		zap.Any("periods", s.periods))

	go s.loop(s.stopCh, s.done)
	return nil
}

// Stop signals the loop to exit and waits for an in-flight run to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("report scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(stop)
		case <-stop:
			return
		}
	}
}

// safeRun keeps a panicking run from killing the loop.
func (s *Scheduler) safeRun(stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			RunsTotal.WithLabelValues("panic").Inc()
			s.logger.Error("scheduled run panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

// RunOnce generates every configured report and purges expired insights.
// A failing period does not stop the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, period := range s.periods {
		reports, err := s.reporter.GeneratePerformanceReport(ctx, period)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s report: %w", period, err))
			continue
		}
		for _, r := range reports {
			ModelSuccessRate.WithLabelValues(r.Model, string(period)).Set(r.SuccessRate)
			ModelSatisfaction.WithLabelValues(r.Model, string(period)).Set(r.UserSatisfaction)
			s.logger.Info("model performance report",
				zap.String("period", string(period)),
				zap.String("model", r.Model),
				zap.Int("interactions", r.Interactions),
				zap.Float64("success_rate", r.SuccessRate),
				zap.Float64("avg_response_time_ms", r.AvgResponseTimeMs),
				zap.Float64("user_satisfaction", r.UserSatisfaction),
				zap.Float64("estimated_cost", r.EstimatedCost),
				zap.Int("top_issues", len(r.TopIssues)))
		}
	}

	if s.purger != nil {
		n, err := s.purger.PurgeExpired(ctx, s.now().UTC())
		if err != nil {
			errs = append(errs, fmt.Errorf("purge insights: %w", err))
		} else if n > 0 {
			s.logger.Info("expired insights purged", zap.Int("count", n))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		RunsTotal.WithLabelValues("error").Inc()
	} else {
		RunsTotal.WithLabelValues("ok").Inc()
	}
	return err
}
