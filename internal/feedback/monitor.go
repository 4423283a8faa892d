// Package feedback records every AI gateway interaction, keeps shared
// aggregate metrics under concurrent writers, detects anomalous calls and
// learns from user feedback.
//
// Shared aggregates (the realtime metrics document and each clarification
// metric) are only changed through store.Update, so concurrent writers never
// lose updates. Telemetry writes are best-effort: failures are logged and
// counted, never returned to the caller.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store collections used by the monitor.
const (
	CollectionInteractions   = "interactions"
	CollectionClarifications = "clarification_metrics"
	CollectionOpportunities  = "improvement_opportunities"
	CollectionRealtime       = "realtime_metrics"
	CollectionAnomalies      = "anomalies"
	CollectionABTests        = "ab_tests"

	realtimeKey = "global"
)

var (
	// ErrFeedbackExists is returned when an interaction already has feedback.
	ErrFeedbackExists = errors.New("feedback already recorded")

	// ErrABTestExists is returned when registering a duplicate test name.
	ErrABTestExists = errors.New("ab test already registered")
)

// Monitor is the feedback learning loop.
type Monitor struct {
	store   store.Store
	alerter Alerter
	cfg     config.FeedbackConfig
	tiers   map[string]config.TierConfig
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlerter sets the alerter for high-priority opportunities.
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerter = a }
}

// WithTiers sets the known model tiers used by performance reports.
func WithTiers(tiers map[string]config.TierConfig) Option {
	return func(m *Monitor) { m.tiers = tiers }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a feedback monitor over s.
func NewMonitor(s store.Store, cfg config.FeedbackConfig, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feedback config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		store:  s,
		cfg:    cfg,
		logger: logger.Named("feedback"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alerter == nil {
		m.alerter = NewLogAlerter(logger)
	}
	return m, nil
}

// TrackInteraction records an interaction once per id, folds it into the
// realtime metrics and logs any anomalies. Only malformed input is returned
// as an error. Retrying an id whose realtime fold failed folds it again.
func (m *Monitor) TrackInteraction(ctx context.Context, in AIInteraction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = m.now().UTC()
	}
	in.Feedback = nil
	in.Aggregated = false

	inserted := false
	stored := in
	err := store.UpdateJSON(ctx, m.store, CollectionInteractions, in.ID, func(cur *AIInteraction, exists bool) error {
		inserted = !exists
		if exists {
			stored = *cur
			return store.ErrSkip
		}
		*cur = in
		return nil
	})
	if err != nil {
		m.bookkeepingFailed("interaction", err, zap.String("interaction_id", in.ID))
		return nil
	}
	if !inserted && stored.Aggregated {
		m.logger.Debug("interaction already recorded", zap.String("interaction_id", in.ID))
		return nil
	}

	if inserted {
		InteractionsTotal.WithLabelValues(string(in.Type)).Inc()
		if anomalies := m.DetectAnomalies(in); len(anomalies) > 0 {
			m.recordAnomalies(ctx, in, anomalies)
		}
	}
	m.aggregate(ctx, stored)
	return nil
}

// aggregate folds in into the realtime metrics and then marks it
// Aggregated. A failed fold leaves the mark unset.
func (m *Monitor) aggregate(ctx context.Context, in AIInteraction) {
	if err := m.updateRealtime(ctx, in); err != nil {
		m.bookkeepingFailed("realtime", err, zap.String("interaction_id", in.ID))
		return
	}
	err := store.UpdateJSON(ctx, m.store, CollectionInteractions, in.ID, func(cur *AIInteraction, exists bool) error {
		if !exists {
			return store.ErrSkip
		}
		cur.Aggregated = true
		return nil
	})
	if err != nil {
		m.bookkeepingFailed("interaction", err, zap.String("interaction_id", in.ID))
	}
}

func (m *Monitor) updateRealtime(ctx context.Context, in AIInteraction) error {
	return store.UpdateJSON(ctx, m.store, CollectionRealtime, realtimeKey, func(rt *RealtimeMetrics, _ bool) error {
		rt.TotalInteractions++
		if rt.ByType == nil {
			rt.ByType = map[InteractionType]int64{}
		}
		rt.ByType[in.Type]++
		x := float64(in.Metrics.ResponseTimeMs)
		rt.AvgResponseTimeMs += (x - rt.AvgResponseTimeMs) / float64(rt.TotalInteractions)
		if in.Metrics.ErrorRate > 0 {
			rt.ErrorCount++
		}
		rt.HourlyDistribution[in.Timestamp.UTC().Hour()]++
		rt.LastUpdated = m.now().UTC()
		return nil
	})
}

// RealtimeMetrics returns the current aggregate. A store with no interactions
// yields a zero aggregate.
func (m *Monitor) RealtimeMetrics(ctx context.Context) (RealtimeMetrics, error) {
	rt, err := store.GetJSON[RealtimeMetrics](ctx, m.store, CollectionRealtime, realtimeKey)
	if errors.Is(err, store.ErrNotFound) {
		return RealtimeMetrics{ByType: map[InteractionType]int64{}}, nil
	}
	if err != nil {
		return rt, fmt.Errorf("load realtime metrics: %w", err)
	}
	return rt, nil
}

// DetectAnomalies runs the independent anomaly checks against in.
func (m *Monitor) DetectAnomalies(in AIInteraction) []AnomalyType {
	var out []AnomalyType
	if in.Metrics.ResponseTimeMs > m.cfg.SlowResponseMs {
		out = append(out, AnomalySlowResponse)
	}
	if t := in.Response.TokensUsed; t != nil && *t > m.cfg.HighTokenUsage {
		out = append(out, AnomalyHighTokenUsage)
	}
	if in.Metrics.RetryCount > m.cfg.MaxRetries {
		out = append(out, AnomalyMultipleRetries)
	}
	if c := in.Response.Confidence; c != nil && *c < m.cfg.LowConfidence {
		out = append(out, AnomalyLowConfidence)
	}
	return out
}

func (m *Monitor) recordAnomalies(ctx context.Context, in AIInteraction, types []AnomalyType) {
	for _, t := range types {
		AnomaliesTotal.WithLabelValues(string(t)).Inc()
	}
	rec := AnomalyRecord{
		InteractionID: in.ID,
		UserID:        in.UserID,
		Types:         types,
		Timestamp:     m.now().UTC(),
	}
	if err := store.PutJSON(ctx, m.store, CollectionAnomalies, in.ID, rec); err != nil {
		m.bookkeepingFailed("anomaly", err, zap.String("interaction_id", in.ID))
		return
	}
	m.logger.Info("interaction anomaly detected",
		zap.String("interaction_id", in.ID),
		zap.String("user_id", in.UserID),
		zap.Any("types", types))
}

// Anomalies returns the anomaly log ordered by interaction id.
func (m *Monitor) Anomalies(ctx context.Context) ([]AnomalyRecord, error) {
	return store.ListJSON[AnomalyRecord](ctx, m.store, CollectionAnomalies, "")
}

// Interaction loads one recorded interaction.
func (m *Monitor) Interaction(ctx context.Context, id string) (AIInteraction, error) {
	return store.GetJSON[AIInteraction](ctx, m.store, CollectionInteractions, id)
}

func (m *Monitor) bookkeepingFailed(op string, err error, fields ...zap.Field) {
	BookkeepingErrors.WithLabelValues(op).Inc()
	m.logger.Warn("feedback bookkeeping failed",
		append(fields, zap.String("op", op), zap.Error(err))...)
}
