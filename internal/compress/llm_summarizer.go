package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// LLMSummarizer generates summaries by prompting the same local model the
// agent loop drives. It thins inline images out of every message that has
// them before they reach the prompt, since a summary never needs to quote
// image bytes.
type LLMSummarizer struct {
	provider        agent.LLMProvider
	keepImagesInput int
}

// NewLLMSummarizer creates a Summarizer backed by provider. keepImages
// bounds how many inline images survive per message before summarization;
// 0 means drop all of them.
func NewLLMSummarizer(provider agent.LLMProvider, keepImages int) *LLMSummarizer {
	return &LLMSummarizer{provider: provider, keepImagesInput: keepImages}
}

const systemPrompt = "You compress conversation history into a concise, factual summary. " +
	"Preserve names, numbers, decisions, and open questions. Do not add commentary. " +
	"Write the summary as plain prose, not a transcript."

// GenerateSummary implements Summarizer.
func (s *LLMSummarizer) GenerateSummary(ctx context.Context, messages []*Message, cfg *Config) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("no llm provider configured for summarization")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var body strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if agent.CountImages(content) > 0 {
			content, _ = agent.RetainImages(content, s.keepImagesInput)
		}
		body.WriteString(fmt.Sprintf("[%s]: %s\n\n", msg.Role, content))
	}

	instructions := systemPrompt
	if cfg.CustomInstructions != "" {
		instructions = instructions + "\n\n" + cfg.CustomInstructions
	}
	if cfg.PreviousSummary != "" && cfg.PreviousSummary != DefaultSummaryFallback {
		instructions = instructions + "\n\nPrior summary to build on:\n" + cfg.PreviousSummary
	}

	req := &agent.GenerateRequest{
		Messages: []agent.PromptMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: body.String()},
		},
		MaxTokens:   cfg.ReserveTokens,
		Temperature: 0.1,
	}

	out, err := s.provider.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return DefaultSummaryFallback, nil
	}
	return out, nil
}
