// Package app wires the agent's components together: configuration, the
// local LLM endpoint, L3 vector memory, the context manager, the chat
// store, and the leaf tools a session's tool registry exposes. Callers
// (cmd/agent's CLI) build an App once per process and open a Session per
// chat.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/chatstore"
	"github.com/haasonsaas/nexus/internal/compress"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/contextmgr"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/promptbuild"
	"github.com/haasonsaas/nexus/internal/tools/facts"
	"github.com/haasonsaas/nexus/internal/tools/vectormemory"
	"github.com/haasonsaas/nexus/pkg/models"
)

// App holds every long-lived dependency shared across chats: one LLM
// endpoint, one vector memory backend, one context manager, one chat store.
type App struct {
	Config  *config.Config
	Chats   *chatstore.Store
	Memory  *memory.Manager
	Context *contextmgr.Manager
	LLM     *llm.Provider
}

// Bootstrap builds an App from cfg. Memory is always enabled (config has no
// switch for it); a failure to open it fails Bootstrap.
func Bootstrap(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}

	chats := chatstore.New(cfg.ChatStore.DataDir)

	memCfg := memory.DefaultConfig()
	memCfg.Dimension = cfg.Embeddings.Dimension
	memCfg.SQLiteVec.Path = chats.MemoryDir() + "/vectors.db"
	memCfg.Embeddings.BaseURL = cfg.Embeddings.BaseURL
	memCfg.Embeddings.Model = cfg.Embeddings.Model
	memMgr, err := memory.NewManager(&memCfg)
	if err != nil {
		return nil, fmt.Errorf("app: bootstrap memory: %w", err)
	}

	provider := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})

	summarizer := compress.NewLLMSummarizer(provider, 0)

	budget := contextmgr.DefaultBudget()
	applyBudgetOverrides(&budget, cfg.ContextBudget)

	ctxMgr := contextmgr.NewManager(contextmgr.Config{
		Memory:     memMgr,
		Summarizer: summarizer,
		Budget:     budget,
		Pruning:    config.EffectiveContextPruningSettings(cfg.ContextPruning),
	})

	return &App{Config: cfg, Chats: chats, Memory: memMgr, Context: ctxMgr, LLM: provider}, nil
}

// applyBudgetOverrides copies any non-zero share from cfg onto budget,
// leaving contextmgr.DefaultBudget's value wherever cfg left a share unset.
func applyBudgetOverrides(budget *contextmgr.Budget, cfg config.ContextBudgetConfig) {
	if cfg.SystemShare > 0 {
		budget.System = contextmgr.BudgetShares{Floor: cfg.SystemShare, Target: cfg.SystemShare, Ceil: cfg.SystemShare}
	}
	if cfg.ScratchpadFloor > 0 {
		budget.Scratchpad.Floor = cfg.ScratchpadFloor
	}
	if cfg.ScratchpadTarget > 0 {
		budget.Scratchpad.Target = cfg.ScratchpadTarget
	}
	if cfg.ScratchpadCeil > 0 {
		budget.Scratchpad.Ceil = cfg.ScratchpadCeil
	}
	if cfg.RetrievedFloor > 0 {
		budget.Retrieved.Floor = cfg.RetrievedFloor
	}
	if cfg.RetrievedTarget > 0 {
		budget.Retrieved.Target = cfg.RetrievedTarget
	}
	if cfg.RetrievedCeil > 0 {
		budget.Retrieved.Ceil = cfg.RetrievedCeil
	}
	if cfg.HistoryFloor > 0 {
		budget.History.Floor = cfg.HistoryFloor
	}
	if cfg.HistoryTarget > 0 {
		budget.History.Target = cfg.HistoryTarget
	}
	if cfg.HistoryCeil > 0 {
		budget.History.Ceil = cfg.HistoryCeil
	}
	if cfg.ReserveShare > 0 {
		budget.Reserve = contextmgr.BudgetShares{Floor: cfg.ReserveShare, Target: cfg.ReserveShare, Ceil: cfg.ReserveShare}
	}
}

// Session binds the shared App to one chat: its own tool registry (so
// memory_search/memory_write know which chat scope to use) and its own
// loop.
type Session struct {
	app      *App
	chat     *chatstore.Chat
	registry *agent.ToolRegistry
	loop     *agent.Loop
}

// OpenSession loads or creates chatID and builds the tool registry and loop
// bound to it.
func (a *App) OpenSession(chatID, title string) (*Session, error) {
	chat, err := a.Chats.LoadChat(chatID)
	if err != nil {
		if err != chatstore.ErrChatNotFound {
			return nil, fmt.Errorf("app: load chat: %w", err)
		}
		chat, err = a.Chats.CreateChat(chatID, title)
		if err != nil {
			return nil, fmt.Errorf("app: create chat: %w", err)
		}
	}

	registry := agent.NewToolRegistry()
	if err := registry.Register(facts.NewExtractTool(10)); err != nil {
		return nil, fmt.Errorf("app: register facts_extract: %w", err)
	}
	if err := registry.Register(vectormemory.NewSearchTool(a.Memory, chat.ID)); err != nil {
		return nil, fmt.Errorf("app: register memory_search: %w", err)
	}
	if err := registry.Register(vectormemory.NewWriteTool(a.Memory, chat.ID)); err != nil {
		return nil, fmt.Errorf("app: register memory_write: %w", err)
	}

	loop := agent.NewLoop(a.LLM, registry, &agent.LoopConfig{
		MaxCycles:           a.Config.Loop.MaxCycles,
		MaxTokens:           a.Config.LLM.MaxTokens,
		Temperature:         a.Config.LLM.Temperature,
		ReflectionDirective: a.Config.Loop.ReflectionDirective,
	})

	return &Session{app: a, chat: chat, registry: registry, loop: loop}, nil
}

// Turn runs one user message through the full cycle: load L1/L2, build
// context within the model's window, run the ReAct loop, persist the new
// messages, and return the final answer.
func (s *Session) Turn(ctx context.Context, userMessage string) (*agent.Result, error) {
	history, err := s.app.Chats.LoadHistory(s.chat.ID)
	if err != nil {
		return nil, fmt.Errorf("app: load history: %w", err)
	}
	scratchpad, err := s.app.Chats.LoadScratchpad(s.chat.ID)
	if err != nil {
		return nil, fmt.Errorf("app: load scratchpad: %w", err)
	}

	systemPrompt := promptbuild.Build(s.registry)
	contextWindow := s.app.Config.LLM.ContextWindow - s.app.Config.LLM.MaxTokens
	if contextWindow <= 0 {
		contextWindow = s.app.Config.LLM.ContextWindow
	}

	built, err := s.app.Context.Build(ctx, contextmgr.Input{
		ChatID:       s.chat.ID,
		SystemPrompt: systemPrompt,
		Scratchpad:   scratchpad,
		History:      history,
		UserQuery:    userMessage,
		TotalBudget:  contextWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build context: %w", err)
	}

	messages := []agent.PromptMessage{{Role: "system", Content: built.SystemPrompt}}
	if built.Scratchpad != "" {
		messages = append(messages, agent.PromptMessage{Role: "system", Content: "Scratchpad:\n" + built.Scratchpad})
	}
	for _, r := range built.Retrieved {
		if r == nil || r.Record == nil {
			continue
		}
		messages = append(messages, agent.PromptMessage{Role: "system", Content: "Remembered: " + r.Record.Content})
	}
	for _, m := range built.History {
		messages = append(messages, agent.PromptMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, agent.PromptMessage{Role: "user", Content: userMessage})

	result, runErr := s.loop.Run(ctx, messages)
	if result == nil {
		return nil, runErr
	}

	if err := s.persist(userMessage, result); err != nil {
		return result, err
	}
	return result, runErr
}

func (s *Session) persist(userMessage string, result *agent.Result) error {
	now := time.Now()
	if err := s.app.Chats.AppendMessage(s.chat.ID, &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		ChatID:    s.chat.ID,
		Content:   userMessage,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("app: persist user message: %w", err)
	}
	if result.FinalAnswer != "" {
		if err := s.app.Chats.AppendMessage(s.chat.ID, &models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			ChatID:    s.chat.ID,
			Content:   result.FinalAnswer,
			CreatedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("app: persist assistant message: %w", err)
		}
	}

	scratchpad := renderScratchpad(result.Cycles)
	if err := s.app.Chats.SaveScratchpad(s.chat.ID, scratchpad); err != nil {
		return fmt.Errorf("app: persist scratchpad: %w", err)
	}
	return nil
}

// renderScratchpad flattens this run's cycles into the L1 scratchpad text
// fed back in as the next turn's in-progress reasoning trail.
func renderScratchpad(cycles []agent.CycleRecord) string {
	var out string
	for _, c := range cycles {
		if c.Thought != "" {
			out += fmt.Sprintf("Thought %d: %s\n", c.Cycle, c.Thought)
		}
		if c.ToolName != "" {
			out += fmt.Sprintf("Action %d: %s\n", c.Cycle, c.ToolName)
		}
		if c.Observation != "" {
			out += fmt.Sprintf("Observation %d: %s\n", c.Cycle, c.Observation)
		}
	}
	return out
}
