package contextmgr

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/internal/compress"
	"github.com/haasonsaas/nexus/pkg/models"
)

type stubSummarizer struct{ calls int }

func (s *stubSummarizer) GenerateSummary(_ context.Context, messages []*compress.Message, _ *compress.Config) (string, error) {
	s.calls++
	return fmt.Sprintf("summary of %d messages", len(messages)), nil
}

func TestBuild_FitsUnderBudget(t *testing.T) {
	m := NewManager(Config{})
	history := []*models.Message{
		{ID: "1", Role: models.RoleUser, Content: "hello"},
		{ID: "2", Role: models.RoleAssistant, Content: "hi there"},
	}

	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "you are an agent",
		Scratchpad:   "thought: greet the user",
		History:      history,
		UserQuery:    "hello",
		TotalBudget:  2000,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if built.TokensUsed > built.TokenBudget {
		t.Errorf("TokensUsed %d exceeds budget %d", built.TokensUsed, built.TokenBudget)
	}
	if len(built.History) != len(history) {
		t.Errorf("expected all history to fit, got %d of %d", len(built.History), len(history))
	}
}

func TestBuild_SystemAloneOverflowsErrors(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Build(context.Background(), Input{
		SystemPrompt: string(make([]byte, 10000)),
		TotalBudget:  100,
	})
	if err == nil {
		t.Fatal("expected a context overflow error")
	}
}

func TestBuild_PrunesOldestHistoryFirstWithoutSummarizer(t *testing.T) {
	m := NewManager(Config{})
	history := make([]*models.Message, 20)
	for i := range history {
		history[i] = &models.Message{ID: string(rune('a' + i)), Role: models.RoleUser, Content: string(make([]byte, 200))}
	}

	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "system",
		History:      history,
		TotalBudget:  300,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(built.History) == 0 || len(built.History) == len(history) {
		t.Fatalf("expected a proper subset of history kept, got %d of %d", len(built.History), len(history))
	}
	if built.History[len(built.History)-1].ID != history[len(history)-1].ID {
		t.Error("expected the most recent message to survive pruning")
	}
}

func TestBuild_NoMemoryManagerSkipsRetrieval(t *testing.T) {
	m := NewManager(Config{})
	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "system",
		UserQuery:    "what do you remember?",
		TotalBudget:  500,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(built.Retrieved) != 0 {
		t.Errorf("expected no retrieved memories without a manager, got %d", len(built.Retrieved))
	}
}

func TestBuild_ChargesFixedTokenCostPerImageMarker(t *testing.T) {
	m := NewManager(Config{})
	hugeBase64 := strings.Repeat("A", 4000)

	withImage := m.count("a photo: [IMAGE_DATA:" + hugeBase64 + "]")
	textOnly := m.count("a photo: ")

	if withImage != textOnly+agent.ImageTokenCost {
		t.Errorf("count() with one image = %d, want %d (text + ImageTokenCost)", withImage, textOnly+agent.ImageTokenCost)
	}
}

func TestBuild_PruningTrimsOversizedToolResultsBeforeBudgeting(t *testing.T) {
	settings := agentctx.DefaultContextPruningSettings()
	settings.KeepLastAssistants = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClearRatio = 0.99
	settings.SoftTrim.MaxChars = 50
	settings.SoftTrim.HeadChars = 10
	settings.SoftTrim.TailChars = 10

	m := NewManager(Config{Pruning: &settings})
	history := []*models.Message{
		{ID: "0", Role: models.RoleUser, Content: "hello"},
		{ID: "1", Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "tc-1", Name: "fetch"}}},
		{ID: "2", Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "tc-1", Content: strings.Repeat("x", 200)}}},
		{ID: "3", Role: models.RoleAssistant, Content: "done"},
	}

	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "system",
		History:      history,
		TotalBudget:  5000,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	var toolMsg *models.Message
	for _, msg := range built.History {
		if msg.ID == "2" {
			toolMsg = msg
		}
	}
	if toolMsg == nil {
		t.Fatal("expected the tool-result message to survive")
	}
	if toolMsg.ToolResults[0].Content == strings.Repeat("x", 200) {
		t.Error("expected the oversized tool result to have been trimmed")
	}
}

func TestBuild_PruningOffLeavesHistoryUntouched(t *testing.T) {
	m := NewManager(Config{Pruning: nil})
	history := []*models.Message{
		{ID: "1", Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "tc-1", Content: strings.Repeat("x", 200)}}},
	}

	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "system",
		History:      history,
		TotalBudget:  5000,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if built.History[0].ToolResults[0].Content != strings.Repeat("x", 200) {
		t.Error("expected history to be untouched when pruning is disabled")
	}
}

func TestBuild_CarriesForwardExistingSummaryInsteadOfRecompressingIt(t *testing.T) {
	summarizer := &stubSummarizer{}
	history := []*models.Message{
		{ID: "s1", ChatID: "chat-1", Role: models.RoleSystem, Content: "earlier summary", Compressed: true},
	}
	for i := 0; i < 12; i++ {
		history = append(history, &models.Message{
			ID:      fmt.Sprintf("m%d", i),
			ChatID:  "chat-1",
			Role:    models.RoleUser,
			Content: string(make([]byte, 200)),
		})
	}

	m := NewManager(Config{Summarizer: summarizer})
	built, err := m.Build(context.Background(), Input{
		SystemPrompt: "system",
		History:      history,
		TotalBudget:  300,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if summarizer.calls == 0 {
		t.Fatal("expected the summarizer to be invoked")
	}
	if !strings.Contains(built.History[0].Content, "earlier summary") {
		t.Errorf("expected the new summary to carry forward the earlier one, got %q", built.History[0].Content)
	}
}
