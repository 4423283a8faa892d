package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LangchainClient serves each tier through a langchaingo OpenAI model.
// Request.JSON is not forwarded; ParseJSON tolerates prose around the object.
type LangchainClient struct {
	tiers   tierSet
	models  map[string]llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewLangchainClient creates one langchaingo model per configured tier.
func NewLangchainClient(cfg config.GatewayConfig, logger *zap.Logger) (*LangchainClient, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("gateway requires at least one tier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	models := make(map[string]llms.Model, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		opts := []openai.Option{openai.WithModel(tier.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey.IsSet() {
			opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create langchain model for tier %s: %w", name, err)
		}
		models[name] = llm
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &LangchainClient{
		tiers:   cfg.Tiers,
		models:  models,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		timeout: cfg.Timeout,
		logger:  logger.Named("gateway"),
	}, nil
}

// newLangchainClientWithModels is used by tests to inject fake models.
func newLangchainClientWithModels(tiers map[string]config.TierConfig, models map[string]llms.Model) *LangchainClient {
	return &LangchainClient{
		tiers:   tiers,
		models:  models,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
	}
}

func (c *LangchainClient) Complete(ctx context.Context, req Request) (Response, error) {
	out := Response{Tier: req.Tier}
	modelName, err := c.tiers.model(req.Tier)
	if err != nil {
		return out, err
	}
	out.Model = modelName
	llm, ok := c.models[req.Tier]
	if !ok {
		return out, fmt.Errorf("%w: %q", ErrUnknownTier, req.Tier)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return out, fmt.Errorf("%w: rate limiter: %w", ErrGateway, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(defaultTemperature), llms.WithMaxTokens(defaultMaxTokens)}

	start := time.Now()
	out.Attempts = 1
	resp, err := llm.GenerateContent(ctx, messages, opts...)
	out.Latency = time.Since(start)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return out, fmt.Errorf("%w: empty response", ErrGateway)
	}

	choice := resp.Choices[0]
	out.Text = choice.Content
	if n, ok := tokenCount(choice.GenerationInfo); ok {
		out.TokensUsed = &n
	}
	return out, nil
}

// tokenCount reads the total token usage reported by the provider.
func tokenCount(info map[string]any) (int, bool) {
	switch v := info["TotalTokens"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (c *LangchainClient) Tiers() []string { return c.tiers.names() }

func (c *LangchainClient) Model(tier string) (string, bool) {
	m, err := c.tiers.model(tier)
	return m, err == nil
}

var _ Client = (*LangchainClient)(nil)
