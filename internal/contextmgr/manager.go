// Package contextmgr assembles the prompt sent to the model on every ReAct
// cycle: a fixed system block, the L1 scratchpad, relevant L3 memories, and
// as much L2 history as fits. Each block gets a priority-weighted share of
// the token budget: the scratchpad is truncated to its ceiling, retrieval
// stops at its ceiling, and history that doesn't fit is LLM-compressed (or
// pruned when no summarizer is set). agent.ContextOverflowError is raised
// when the system block alone exceeds the budget, or when the assembled
// blocks plus the completion reserve still exceed it.
package contextmgr

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/internal/compress"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/pkg/models"
)

// BudgetShares defines a priority class's floor, target, and ceiling share
// of the total token budget.
type BudgetShares struct {
	Floor  float64
	Target float64
	Ceil   float64
}

// Budget holds the per-class shares used to build context. Shares need not
// sum to 1: history receives whatever the scratchpad and retrieved memory
// leave unused after the system block and the reserve are taken.
type Budget struct {
	System     BudgetShares // fixed: floor == target == ceil
	Scratchpad BudgetShares
	Retrieved  BudgetShares
	History    BudgetShares
	Reserve    BudgetShares // floor == target, no ceiling (whatever is left)
}

// DefaultBudget returns the standard priority-class split.
func DefaultBudget() Budget {
	return Budget{
		System:     BudgetShares{Floor: 0.15, Target: 0.15, Ceil: 0.15},
		Scratchpad: BudgetShares{Floor: 0.05, Target: 0.10, Ceil: 0.15},
		Retrieved:  BudgetShares{Floor: 0.05, Target: 0.20, Ceil: 0.30},
		History:    BudgetShares{Floor: 0.30, Target: 0.50, Ceil: 0.70},
		Reserve:    BudgetShares{Floor: 0.05, Target: 0.05, Ceil: 0.05},
	}
}

// Config wires the manager's dependencies.
type Config struct {
	Tokenizer  agent.Tokenizer
	Memory     *memory.Manager
	Summarizer compress.Summarizer
	Budget     Budget
	// Pruning controls in-place tool-result trimming/clearing applied to
	// history before it's measured against its token budget. Nil disables
	// pruning entirely.
	Pruning *agentctx.ContextPruningSettings
}

// Manager builds the per-cycle prompt context.
type Manager struct {
	cfg Config
}

// NewManager creates a context manager.
func NewManager(cfg Config) *Manager {
	if cfg.Budget == (Budget{}) {
		cfg.Budget = DefaultBudget()
	}
	return &Manager{cfg: cfg}
}

// Built is the assembled prompt context for one cycle.
type Built struct {
	SystemPrompt string
	Scratchpad   string
	Retrieved    []*models.SearchResult
	History      []*models.Message
	TokensUsed   int
	TokenBudget  int
}

// Input is everything the manager needs to build one cycle's context.
type Input struct {
	ChatID       string
	SystemPrompt string
	Scratchpad   string
	History      []*models.Message
	UserQuery    string
	TotalBudget  int // total tokens available for the prompt, model context window minus completion reserve
}

// Build assembles system + scratchpad + retrieved memories + history within
// in.TotalBudget, growing L3 retrieval depth and shrinking/compressing
// blocks as needed to fit.
func (m *Manager) Build(ctx context.Context, in Input) (*Built, error) {
	if in.TotalBudget <= 0 {
		return nil, fmt.Errorf("contextmgr: total budget must be positive")
	}

	systemTokens := m.count(in.SystemPrompt)
	if systemTokens > in.TotalBudget {
		return nil, &agent.ContextOverflowError{RequiredTokens: systemTokens, BudgetTokens: in.TotalBudget}
	}

	remaining := in.TotalBudget - systemTokens
	scratchpadBudget := int(float64(in.TotalBudget) * m.cfg.Budget.Scratchpad.Target)
	retrievedBudget := int(float64(in.TotalBudget) * m.cfg.Budget.Retrieved.Target)
	reserveBudget := int(float64(in.TotalBudget) * m.cfg.Budget.Reserve.Target)

	scratchpad, scratchpadTokens := m.fitScratchpad(in.Scratchpad, scratchpadBudget, int(float64(in.TotalBudget)*m.cfg.Budget.Scratchpad.Ceil))

	retrieved, retrievedTokens := m.retrieve(ctx, in.ChatID, in.UserQuery, retrievedBudget, int(float64(in.TotalBudget)*m.cfg.Budget.Retrieved.Ceil))

	// History gets whatever scratchpad and retrieved memory left unused.
	used := systemTokens + scratchpadTokens + retrievedTokens + reserveBudget
	historyBudget := remaining - scratchpadTokens - retrievedTokens - reserveBudget
	if historyBudget < 0 {
		historyBudget = 0
	}

	prunedHistory := in.History
	if m.cfg.Pruning != nil && m.cfg.Pruning.Mode != agentctx.ContextPruningOff {
		prunedHistory = agentctx.PruneContextMessages(in.History, *m.cfg.Pruning, in.TotalBudget*compress.CharsPerToken)
	}

	history, historyTokens, err := m.fitHistory(ctx, prunedHistory, historyBudget)
	if err != nil {
		return nil, err
	}
	used += historyTokens

	if used > in.TotalBudget {
		return nil, &agent.ContextOverflowError{RequiredTokens: used, BudgetTokens: in.TotalBudget}
	}

	return &Built{
		SystemPrompt: in.SystemPrompt,
		Scratchpad:   scratchpad,
		Retrieved:    retrieved,
		History:      history,
		TokensUsed:   used,
		TokenBudget:  in.TotalBudget,
	}, nil
}

// count measures text's token cost. Inline image markers are excluded from
// the measured text and charged agent.ImageTokenCost each instead, so a
// base64 image blob participates in budgeting as a fixed synthetic cost
// rather than as thousands of text tokens.
func (m *Manager) count(text string) int {
	images := agent.CountImages(text)
	stripped := agent.StripImageMarkers(text)

	var base int
	if m.cfg.Tokenizer != nil {
		base = m.cfg.Tokenizer.Count(stripped)
	} else {
		base = (len(stripped) + compress.CharsPerToken - 1) / compress.CharsPerToken
	}
	return base + images*agent.ImageTokenCost
}

// fitScratchpad truncates the L1 scratchpad from the front (oldest
// reasoning first) when it exceeds its ceiling; the most recent thoughts
// are what the model needs to continue the current cycle.
func (m *Manager) fitScratchpad(text string, target, ceil int) (string, int) {
	tokens := m.count(text)
	if tokens <= ceil {
		return text, tokens
	}
	// Keep the tail: the most recent thought/action/observation entries.
	charBudget := ceil * compress.CharsPerToken
	if charBudget >= len(text) {
		return text, tokens
	}
	truncated := "...[earlier scratchpad entries truncated]\n" + text[len(text)-charBudget:]
	return truncated, m.count(truncated)
}

// retrieve runs one L3 search (up to 12 results over the global and chat
// scopes) and keeps results, best first, while their total stays within
// ceil. target is not used.
func (m *Manager) retrieve(ctx context.Context, chatID, query string, target, ceil int) ([]*models.SearchResult, int) {
	if m.cfg.Memory == nil || query == "" {
		return nil, 0
	}

	scopes := []models.MemoryScope{models.GlobalScope}
	if chatID != "" {
		scopes = append(scopes, models.ChatScope(chatID))
	}

	kMax := 12
	resp, err := m.cfg.Memory.Search(ctx, &models.SearchRequest{Query: query, Scopes: scopes, Limit: kMax})
	if err != nil || resp == nil {
		return nil, 0
	}

	var kept []*models.SearchResult
	tokens := 0
	for _, r := range resp.Results {
		if r == nil || r.Record == nil {
			continue
		}
		t := m.count(r.Record.Content)
		if tokens+t > ceil {
			break
		}
		kept = append(kept, r)
		tokens += t
	}
	return kept, tokens
}

// fitHistory greedily fills the history budget from most recent backwards,
// falling back to compressing the oldest span when everything doesn't fit.
func (m *Manager) fitHistory(ctx context.Context, history []*models.Message, budget int) ([]*models.Message, int, error) {
	if budget <= 0 || len(history) == 0 {
		return nil, 0, nil
	}

	tok := toCompressMessages(history)
	total := compress.EstimateMessagesTokens(tok, m.cfg.Tokenizer)
	if total <= budget {
		return history, total, nil
	}

	if m.cfg.Summarizer == nil {
		result := compress.PruneHistoryForBudget(tok, budget, m.cfg.Tokenizer)
		return history[len(history)-len(result.Messages):], result.KeptTokens, nil
	}

	// If history already carries a summary from an earlier turn, only the
	// span since that summary needs compressing again; the existing
	// summary itself is carried forward rather than re-compressed.
	existingSummary := agentctx.FindLatestSummary(history)
	sinceSummary := agentctx.MessagesSinceSummary(history, existingSummary)

	// Compress everything but the most recent third of the remaining
	// window, then re-check the budget with the summary standing in for
	// the rest.
	keepRecent := len(sinceSummary) / 3
	if keepRecent < 1 {
		keepRecent = 1
	}
	if keepRecent > len(sinceSummary) {
		keepRecent = len(sinceSummary)
	}
	toCompress := sinceSummary[:len(sinceSummary)-keepRecent]
	recent := sinceSummary[len(sinceSummary)-keepRecent:]

	cfg := compress.DefaultConfig()
	summary, err := compress.SummarizeWithFallback(ctx, toCompressMessages(toCompress), m.cfg.Summarizer, cfg, m.cfg.Tokenizer)
	if err != nil {
		// The LLM summarization failed: fall back to deterministic pruning.
		result := compress.PruneHistoryForBudget(tok, budget, m.cfg.Tokenizer)
		return history[len(history)-len(result.Messages):], result.KeptTokens, nil
	}
	if existingSummary != nil {
		summary = existingSummary.Content + "\n" + summary
	}

	summaryMsg := agentctx.CreateSummaryMessage(chatIDOf(history), summary)
	rebuilt := append([]*models.Message{summaryMsg}, recent...)

	rebuiltTok := toCompressMessages(rebuilt)
	rebuiltTotal := compress.EstimateMessagesTokens(rebuiltTok, m.cfg.Tokenizer)
	if rebuiltTotal <= budget {
		return rebuilt, rebuiltTotal, nil
	}

	// Still too big: prune the recompressed set down to budget.
	result := compress.PruneHistoryForBudget(rebuiltTok, budget, m.cfg.Tokenizer)
	return rebuilt[len(rebuilt)-len(result.Messages):], result.KeptTokens, nil
}

func chatIDOf(history []*models.Message) string {
	for _, m := range history {
		if m != nil && m.ChatID != "" {
			return m.ChatID
		}
	}
	return ""
}

func toCompressMessages(history []*models.Message) []*compress.Message {
	out := make([]*compress.Message, len(history))
	for i, m := range history {
		if m == nil {
			continue
		}
		out[i] = &compress.Message{Role: string(m.Role), Content: m.Content, ID: m.ID}
	}
	return out
}
