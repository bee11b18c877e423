package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sakif/llm-relay/internal/apperror"
)

// anthropicVersion is the provider protocol version header. Pinned, not
// configurable: the request/response shapes below are written against it.
const anthropicVersion = "2023-06-01"

// maxTokens is the fixed output-token budget per completion.
const maxTokens = 1024

// AnthropicConfig configures the messages-API client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AnthropicClient calls the Anthropic messages API.
//
// One request, one response. No retries and no streaming — a failed call
// is reported to the worker, which records it on the job; the client
// decides whether to resubmit.
type AnthropicClient struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

var _ Gateway = (*AnthropicClient)(nil)

// NewAnthropicClient creates a client for the given provider config.
// The resty timeout is a transport-level backstop; per-job deadlines are
// enforced by the caller through ctx.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gateway: model is required")
	}

	cli := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(2 * time.Minute).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("Content-Type", "application/json")

	return &AnthropicClient{
		client: cli,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// message is a single chat turn in the provider's wire format.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the messages-API request body.
type completionRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

// completionResponse is the subset of the response body we consume:
// the content list, from which we take the first text block.
type completionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends the prompt as a single user-role message and extracts
// the first text segment of the response.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out completionResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:     c.model,
			MaxTokens: maxTokens,
			Messages:  []message{{Role: "user", Content: prompt}},
		}).
		SetResult(&out).
		Post("")
	if err != nil {
		return "", fmt.Errorf("gateway: completion request: %w", err)
	}

	if resp.IsError() {
		c.logger.Warn("model provider returned error",
			slog.Int("status", resp.StatusCode()),
			slog.String("body", resp.String()),
		)
		return "", apperror.Upstream(resp.StatusCode(), resp.String())
	}

	for _, block := range out.Content {
		if block.Text != "" {
			return block.Text, nil
		}
	}

	return "", apperror.Upstream(resp.StatusCode(), "response contained no text content")
}
