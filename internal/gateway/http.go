package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
	defaultBaseBackoff = 500 * time.Millisecond
)

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL     string
	apiKey      config.Secret
	tiers       tierSet
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	logger      *zap.Logger
}

// NewHTTPClient creates a rate-limited HTTP client for cfg.
func NewHTTPClient(cfg config.GatewayConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base_url required")
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("gateway requires at least one tier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		tiers:       cfg.Tiers,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: defaultBaseBackoff,
		logger:      logger.Named("gateway"),
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the prompt to the tier's model, retrying transient failures
// with exponential backoff.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	out := Response{Tier: req.Tier}
	model, err := c.tiers.model(req.Tier)
	if err != nil {
		return out, err
	}
	out.Model = model

	if err := c.limiter.Wait(ctx); err != nil {
		return out, fmt.Errorf("%w: rate limiter: %w", ErrGateway, err)
	}

	body := chatRequest{
		Model:       model,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				out.Latency = time.Since(start)
				return out, fmt.Errorf("%w: %w", ErrGateway, ctx.Err())
			}
		}
		out.Attempts++

		resp, err := c.doRequest(ctx, body)
		if err == nil {
			out.Text = resp.Choices[0].Message.Content
			if resp.Usage != nil {
				tokens := resp.Usage.TotalTokens
				out.TokensUsed = &tokens
			}
			out.Latency = time.Since(start)
			return out, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
		c.logger.Debug("retrying gateway call",
			zap.String("tier", req.Tier),
			zap.Int("attempt", out.Attempts),
			zap.Error(err))
	}

	out.Latency = time.Since(start)
	if isRetryableError(lastErr) {
		return out, fmt.Errorf("%w: max retries exceeded: %w", ErrGateway, lastErr)
	}
	return out, fmt.Errorf("%w: %w", ErrGateway, lastErr)
}

func (c *HTTPClient) doRequest(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(data))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}
	return &out, nil
}

func (c *HTTPClient) Tiers() []string { return c.tiers.names() }

func (c *HTTPClient) Model(tier string) (string, bool) {
	m, err := c.tiers.model(tier)
	return m, err == nil
}

// retryableError marks transient failures (network, 429, 5xx).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Client = (*HTTPClient)(nil)
