package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"ResourceCurator/internal/config"
	"ResourceCurator/internal/generator"
	"ResourceCurator/internal/infrastructure/retry"
)

// AnthropicClient implements generator.Provider on the Messages API.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiKey     string
	version    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

var _ generator.Provider = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg config.AnthropicConfig, logger *slog.Logger) *AnthropicClient {
	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}
	return &AnthropicClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		version:    version,
		httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		policy:     retry.DefaultPolicy(),
		logger:     loggerOr(logger),
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete returns the concatenated text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req generator.Request) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("anthropic api key not set")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 10000
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic payload: %w", err)
	}

	var resp anthropicResponse
	err = retry.Do(ctx, c.policy, c.logger, "anthropic messages", func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("new request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", c.version)
		return doJSON(c.httpClient, httpReq, "anthropic", &resp)
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic returned no text content")
	}
	if resp.StopReason == "max_tokens" {
		c.logger.Warn("anthropic response truncated at max_tokens", "max_tokens", maxTokens)
	}
	return text.String(), nil
}
