// Package llm implements agent.LLMProvider against a local OpenAI-compatible
// completions endpoint (llama.cpp's server, vLLM, Ollama's OpenAI shim).
// There is exactly one endpoint and one model; unlike a hosted multi-provider
// client, there is no routing or failover between providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// Config configures the local completions endpoint.
type Config struct {
	// BaseURL points at an OpenAI-compatible /v1 endpoint.
	BaseURL string

	// APIKey is sent as a bearer token. Most local endpoints ignore it.
	APIKey string

	// Model is sent on every request.
	Model string

	// Timeout bounds a single Generate call. Default: 120s.
	Timeout time.Duration

	// MaxRetries bounds how many times a retryable error is retried.
	// Default: 3.
	MaxRetries int
}

// Provider implements agent.LLMProvider over a single local completions
// endpoint.
type Provider struct {
	client     *openai.Client
	model      string
	maxRetries int
}

var _ agent.LLMProvider = (*Provider)(nil)

// New creates a Provider from cfg.
func New(cfg Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Provider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: maxRetries,
	}
}

// Generate sends req as a single non-streaming chat completion, retrying
// transient failures (timeouts, rate limits, 5xx) up to maxRetries times.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (string, error) {
	if req == nil {
		return "", errors.New("llm: request is nil")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, lastErr = p.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return "", fmt.Errorf("llm: generate: %w", lastErr)
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("llm: generate: max retries exceeded: %w", lastErr)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm: generate: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []agent.PromptMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// isRetryable reports whether err looks like a transient failure worth
// retrying against the same local endpoint: a timeout, rate limit, or
// server error.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return true
		default:
			return apiErr.HTTPStatusCode >= 500
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection refused")
}
