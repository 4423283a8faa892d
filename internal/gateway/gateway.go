// Package gateway is the text-generation client used by the insight engine.
//
// A Client resolves a named quality tier ("fast", "quality") to a configured
// model and returns free text. Structured output goes through ParseJSON, which
// yields a tagged Result so every call site handles the parse-failure branch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrGateway wraps transport and provider failures.
	ErrGateway = errors.New("gateway call failed")

	// ErrInvalidOutput marks a response that does not parse into the expected shape.
	ErrInvalidOutput = errors.New("invalid gateway output")

	// ErrUnknownTier is returned for a tier with no configured model.
	ErrUnknownTier = errors.New("unknown gateway tier")

	// ErrDisabled is returned by the disabled client.
	ErrDisabled = errors.New("gateway disabled")
)

// Request is one prompt sent to a tier.
type Request struct {
	Tier   string
	Prompt string
	// System is an optional system instruction.
	System string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Response is the raw text and call metadata of a completion.
type Response struct {
	Text       string
	Tier       string
	Model      string
	TokensUsed *int
	Latency    time.Duration
	// Attempts counts provider calls including retries.
	Attempts int
}

// Client sends prompts to a text-generation provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// Tiers returns the configured tier names, sorted.
	Tiers() []string
	// Model returns the model bound to tier.
	Model(tier string) (string, bool)
}

// New builds the client selected by cfg.Provider.
func New(cfg config.GatewayConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "disabled":
		return NewDisabled(cfg.Tiers), nil
	case "http":
		return NewHTTPClient(cfg, logger)
	case "langchain":
		return NewLangchainClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown gateway provider: %s", cfg.Provider)
	}
}

// tierSet maps tier names to models.
type tierSet map[string]config.TierConfig

func (t tierSet) model(tier string) (string, error) {
	tc, ok := t[tier]
	if !ok || tc.Model == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return tc.Model, nil
}

func (t tierSet) names() []string {
	return config.GatewayConfig{Tiers: t}.TierNames()
}

// Disabled fails every call with ErrDisabled. Callers fall back to their
// deterministic paths.
type Disabled struct {
	tiers tierSet
}

// NewDisabled creates a disabled client that still reports the configured tiers.
func NewDisabled(tiers map[string]config.TierConfig) *Disabled {
	return &Disabled{tiers: tiers}
}

func (d *Disabled) Complete(_ context.Context, req Request) (Response, error) {
	return Response{Tier: req.Tier}, fmt.Errorf("%w: %w", ErrGateway, ErrDisabled)
}

func (d *Disabled) Tiers() []string { return d.tiers.names() }

func (d *Disabled) Model(tier string) (string, bool) {
	m, err := d.tiers.model(tier)
	return m, err == nil
}

// Ensure interfaces are implemented at compile time.
var _ Client = (*Disabled)(nil)
