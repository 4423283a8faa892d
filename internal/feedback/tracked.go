package feedback

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/logging"
)

// systemUser attributes calls made outside a user request.
const systemUser = "system"

// TrackedGateway records every completion as an AIInteraction.
type TrackedGateway struct {
	next    gateway.Client
	monitor *Monitor
	typ     InteractionType
}

var _ gateway.Client = (*TrackedGateway)(nil)

// NewTrackedGateway wraps next so calls are tracked under typ.
func NewTrackedGateway(next gateway.Client, monitor *Monitor, typ InteractionType) *TrackedGateway {
	return &TrackedGateway{next: next, monitor: monitor, typ: typ}
}

// Complete forwards req and tracks the outcome. Tracking never changes the
// result seen by the caller.
func (g *TrackedGateway) Complete(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	start := g.monitor.now()
	resp, err := g.next.Complete(ctx, req)

	latency := resp.Latency
	if latency == 0 {
		latency = g.monitor.now().Sub(start)
	}
	userID := logging.UserIDFromContext(ctx)
	if userID == "" {
		userID = systemUser
	}

	in := AIInteraction{
		UserID: userID,
		Type:   g.typ,
		Request: InteractionRequest{
			Input: req.Prompt,
			Model: req.Tier,
		},
		Response: InteractionResponse{
			Output:           resp.Text,
			ProcessingTimeMs: latency.Milliseconds(),
			TokensUsed:       resp.TokensUsed,
		},
		Metrics: InteractionMetrics{
			ResponseTimeMs: latency.Milliseconds(),
			RetryCount:     max(resp.Attempts-1, 0),
		},
	}
	if err != nil {
		in.Metrics.ErrorRate = 1
	}

	// Detached so a cancelled request still gets recorded.
	trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if terr := g.monitor.TrackInteraction(trackCtx, in); terr != nil {
		g.monitor.bookkeepingFailed("track", terr)
	}
	return resp, err
}

// Tiers returns the wrapped client's tiers.
func (g *TrackedGateway) Tiers() []string { return g.next.Tiers() }

// Model returns the wrapped client's model for tier.
func (g *TrackedGateway) Model(tier string) (string, bool) { return g.next.Model(tier) }
