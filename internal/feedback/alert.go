package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Alerter is notified of high-priority improvement opportunities.
type Alerter interface {
	Alert(ctx context.Context, opp ImprovementOpportunity) error
}

// LogAlerter writes alerts to the log.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-only alerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger.Named("alerts")}
}

func (a *LogAlerter) Alert(_ context.Context, opp ImprovementOpportunity) error {
	a.logger.Warn("high priority improvement opportunity",
		zap.String("opportunity_id", opp.ID),
		zap.String("interaction_id", opp.InteractionID),
		zap.String("interaction_type", string(opp.InteractionType)),
		zap.String("model", opp.Model),
		zap.String("issue", string(opp.Issue)))
	return nil
}

// NATSAlerter publishes alerts as JSON to a NATS subject.
type NATSAlerter struct {
	nc      *nats.Conn
	subject string
}

// NewNATSAlerter creates an alerter publishing on subject.
func NewNATSAlerter(nc *nats.Conn, subject string) (*NATSAlerter, error) {
	if nc == nil {
		return nil, errors.New("nats connection required")
	}
	if subject == "" {
		return nil, errors.New("alert subject required")
	}
	return &NATSAlerter{nc: nc, subject: subject}, nil
}

func (a *NATSAlerter) Alert(_ context.Context, opp ImprovementOpportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := a.nc.Publish(a.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// MultiAlerter fans an alert out to every alerter and joins their errors.
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, opp ImprovementOpportunity) error {
	var errs []error
	for _, a := range m {
		if err := a.Alert(ctx, opp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Alerter = (*LogAlerter)(nil)
	_ Alerter = (*NATSAlerter)(nil)
	_ Alerter = MultiAlerter(nil)
)
