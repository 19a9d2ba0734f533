// Package compress implements the non-parser half of context compaction:
// token estimation, chunking oversized history into LLM-summarizable pieces,
// and pruning to a token budget. The context manager calls into this package
// whenever a priority block would overflow its share of the budget.
package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

const (
	// BaseChunkRatio is the default ratio of context window used per chunk.
	BaseChunkRatio = 0.4

	// MinChunkRatio is the floor ratio, preventing degenerate tiny chunks.
	MinChunkRatio = 0.15

	// SafetyMargin buffers against token-estimate inaccuracy.
	SafetyMargin = 1.2

	// DefaultSummaryFallback is returned when there is no history to summarize.
	DefaultSummaryFallback = "No prior history."

	// DefaultParts is the default fan-out for multi-stage summarization.
	DefaultParts = 2

	// OversizedThreshold is the fraction of the context window above which a
	// single message is too large to summarize whole.
	OversizedThreshold = 0.5

	// CharsPerToken is the fallback character-to-token ratio used when no
	// agent.Tokenizer is supplied.
	CharsPerToken = 4

	// DefaultContextWindow is used when no window size is configured.
	DefaultContextWindow = 8192

	// DefaultMinMessagesForSplit is the minimum message count before a
	// history is split into parts rather than summarized in one pass.
	DefaultMinMessagesForSplit = 4

	// ImagesOmittedNote is a notice text for inline images dropped before
	// summarization. LLMSummarizer does not use it: agent.RetainImages marks
	// dropped images with agent.ImagesOmittedMarker instead.
	ImagesOmittedNote = "[inline images omitted for summarization]"
)

// Message is a compaction-time view of a conversation turn. The context
// manager builds these from models.Message before handing history to this
// package, and discards them afterward.
type Message struct {
	Role        string
	Content     string
	Timestamp   int64
	ID          string
	ToolCalls   string
	ToolResults string
}

// EstimateTokens counts msg's tokens with tok if provided, otherwise falls
// back to a character-based heuristic. Inline image markers are excluded
// from the text measured and instead charged agent.ImageTokenCost each, so
// a base64 blob isn't counted as thousands of text tokens.
func EstimateTokens(msg *Message, tok agent.Tokenizer) int {
	if msg == nil {
		return 0
	}
	text := msg.Content + msg.ToolCalls + msg.ToolResults
	images := agent.CountImages(text)
	stripped := agent.StripImageMarkers(text)

	var base int
	if tok != nil {
		base = tok.Count(stripped)
	} else {
		base = (len(stripped) + CharsPerToken - 1) / CharsPerToken
	}
	return base + images*agent.ImageTokenCost
}

// EstimateMessagesTokens sums EstimateTokens across messages.
func EstimateMessagesTokens(messages []*Message, tok agent.Tokenizer) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg, tok)
	}
	return total
}

// ChunkMessagesByMaxTokens splits messages into chunks no larger than
// maxTokens. A single message exceeding maxTokens gets its own chunk.
func ChunkMessagesByMaxTokens(messages []*Message, maxTokens int, tok agent.Tokenizer) [][]*Message {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]*Message{messages}
	}

	var result [][]*Message
	var current []*Message
	currentTokens := 0

	for _, msg := range messages {
		msgTokens := EstimateTokens(msg, tok)

		if msgTokens > maxTokens {
			if len(current) > 0 {
				result = append(result, current)
				current = nil
				currentTokens = 0
			}
			result = append(result, []*Message{msg})
			continue
		}

		if currentTokens+msgTokens > maxTokens && len(current) > 0 {
			result = append(result, current)
			current = nil
			currentTokens = 0
		}

		current = append(current, msg)
		currentTokens += msgTokens
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// SplitMessagesByTokenShare splits messages into parts with roughly equal
// token counts, for multi-stage summarization fan-out.
func SplitMessagesByTokenShare(messages []*Message, parts int, tok agent.Tokenizer) [][]*Message {
	if len(messages) == 0 {
		return nil
	}
	if parts <= 0 {
		parts = DefaultParts
	}
	if parts == 1 || len(messages) < parts {
		return [][]*Message{messages}
	}

	totalTokens := EstimateMessagesTokens(messages, tok)
	targetPerPart := totalTokens / parts

	var result [][]*Message
	var current []*Message
	currentTokens := 0

	for i, msg := range messages {
		current = append(current, msg)
		currentTokens += EstimateTokens(msg, tok)

		remainingParts := parts - len(result) - 1
		isLast := i == len(messages)-1
		if !isLast && remainingParts > 0 && currentTokens >= targetPerPart {
			result = append(result, current)
			current = nil
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// IsOversizedForSummary reports whether msg alone exceeds
// OversizedThreshold of contextWindow.
func IsOversizedForSummary(msg *Message, contextWindow int, tok agent.Tokenizer) bool {
	if msg == nil || contextWindow <= 0 {
		return false
	}
	threshold := float64(contextWindow) * OversizedThreshold
	return float64(EstimateTokens(msg, tok)) > threshold
}

// Config controls a summarization pass.
type Config struct {
	ReserveTokens        int
	MaxChunkTokens       int
	ContextWindow        int
	CustomInstructions   string
	PreviousSummary      string
	Parts                int
	MinMessagesForSplit  int
}

// DefaultConfig returns sensible defaults for Config.
func DefaultConfig() *Config {
	return &Config{
		ReserveTokens:       512,
		MaxChunkTokens:      4096,
		ContextWindow:       DefaultContextWindow,
		Parts:               DefaultParts,
		MinMessagesForSplit: DefaultMinMessagesForSplit,
	}
}

// Summarizer produces a natural-language summary of a set of messages.
type Summarizer interface {
	GenerateSummary(ctx context.Context, messages []*Message, cfg *Config) (string, error)
}

// SummarizeWithFallback summarizes messages, replacing any individually
// oversized message with a note instead of failing the whole pass. Oversized
// messages are almost always multimodal blocks the caller should already
// have thinned with agent.RetainImages before reaching this package.
func SummarizeWithFallback(ctx context.Context, messages []*Message, summarizer Summarizer, cfg *Config, tok agent.Tokenizer) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("summarizer is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var normal []*Message
	var notes []string
	for _, msg := range messages {
		if IsOversizedForSummary(msg, cfg.ContextWindow, tok) {
			notes = append(notes, fmt.Sprintf("[oversized %s message with %d tokens omitted]", msg.Role, EstimateTokens(msg, tok)))
			continue
		}
		normal = append(normal, msg)
	}

	summary := DefaultSummaryFallback
	if len(normal) > 0 {
		var err error
		summary, err = SummarizeChunks(ctx, normal, summarizer, cfg, tok)
		if err != nil {
			return "", fmt.Errorf("summarizing: %w", err)
		}
	}
	if len(notes) > 0 {
		summary = summary + "\n\n" + strings.Join(notes, "\n")
	}
	return summary, nil
}

// SummarizeChunks chunks messages to fit MaxChunkTokens, summarizes each
// chunk, then merges the chunk summaries into one.
func SummarizeChunks(ctx context.Context, messages []*Message, summarizer Summarizer, cfg *Config, tok agent.Tokenizer) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxChunkTokens := cfg.MaxChunkTokens
	if maxChunkTokens <= 0 {
		maxChunkTokens = int(float64(cfg.ContextWindow) * BaseChunkRatio)
	}

	chunks := ChunkMessagesByMaxTokens(messages, maxChunkTokens, tok)
	if len(chunks) == 0 {
		return DefaultSummaryFallback, nil
	}
	if len(chunks) == 1 {
		return summarizer.GenerateSummary(ctx, chunks[0], cfg)
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		s, err := summarizer.GenerateSummary(ctx, chunk, cfg)
		if err != nil {
			return "", fmt.Errorf("summarizing chunk %d: %w", i, err)
		}
		summaries = append(summaries, s)
	}
	return mergeSummaries(ctx, summaries, summarizer, cfg)
}

func mergeSummaries(ctx context.Context, summaries []string, summarizer Summarizer, cfg *Config) (string, error) {
	if len(summaries) == 0 {
		return DefaultSummaryFallback, nil
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	merge := make([]*Message, len(summaries))
	for i, s := range summaries {
		merge[i] = &Message{Role: "system", Content: fmt.Sprintf("Chunk %d summary:\n%s", i+1, s)}
	}

	mergeCfg := *cfg
	mergeCfg.CustomInstructions = "Merge these chunk summaries into one coherent summary. Preserve key facts and chronological order."
	if cfg.CustomInstructions != "" {
		mergeCfg.CustomInstructions = cfg.CustomInstructions + "\n\n" + mergeCfg.CustomInstructions
	}
	return summarizer.GenerateSummary(ctx, merge, &mergeCfg)
}

// PruneResult reports what PruneHistoryForBudget kept and dropped.
type PruneResult struct {
	Messages        []*Message
	DroppedMessages int
	DroppedTokens   int
	KeptTokens      int
	BudgetTokens    int
}

// PruneHistoryForBudget keeps the most recent messages that fit within
// budgetTokens, dropping older messages first.
func PruneHistoryForBudget(messages []*Message, budgetTokens int, tok agent.Tokenizer) *PruneResult {
	result := &PruneResult{Messages: messages, BudgetTokens: budgetTokens}
	if len(messages) == 0 || budgetTokens <= 0 {
		return result
	}

	total := EstimateMessagesTokens(messages, tok)
	if total <= budgetTokens {
		result.KeptTokens = total
		return result
	}

	var kept []*Message
	keptTokens := 0
	for i := len(messages) - 1; i >= 0; i-- {
		msgTokens := EstimateTokens(messages[i], tok)
		if keptTokens+msgTokens > budgetTokens {
			break
		}
		kept = append([]*Message{messages[i]}, kept...)
		keptTokens += msgTokens
	}

	result.Messages = kept
	result.DroppedMessages = len(messages) - len(kept)
	result.DroppedTokens = total - keptTokens
	result.KeptTokens = keptTokens
	return result
}

// FormatMessagesForSummary renders messages as plain text for a
// summarization prompt.
func FormatMessagesForSummary(messages []*Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
		if msg.ToolCalls != "" {
			sb.WriteString(fmt.Sprintf("  [tool calls: %s]\n", truncate(msg.ToolCalls, 200)))
		}
		if msg.ToolResults != "" {
			sb.WriteString(fmt.Sprintf("  [tool results: %s]\n", truncate(msg.ToolResults, 200)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
