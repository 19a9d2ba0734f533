// Package vectormemory implements the memory_search and memory_write tools
// the agent uses to read and append to the L3 vector store.
package vectormemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Searcher is the subset of *memory.Manager the search tool needs.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// SearchTool searches the global scope plus the active chat's scope for
// relevant prior memories.
type SearchTool struct {
	manager Searcher
	chatID  string
}

// NewSearchTool creates a memory_search tool bound to chatID.
func NewSearchTool(manager Searcher, chatID string) *SearchTool {
	return &SearchTool{manager: manager, chatID: chatID}
}

func (t *SearchTool) Name() string        { return "memory_search" }
func (t *SearchTool) Description() string {
	return "Searches long-term memory (global and this chat) for relevant prior facts."
}
func (t *SearchTool) SideEffectClass() agent.SideEffectClass { return agent.SideEffectMemory }

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Search query to find relevant memories"},
    "limit": {"type": "integer", "description": "Maximum number of results"},
    "threshold": {"type": "number", "description": "Minimum similarity score from 0 to 1"}
  },
  "required": ["query"]
}`)
}

type searchInput struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float32 `json:"threshold"`
}

type searchResultView struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Score      float32   `json:"score"`
	Scope      string    `json:"scope"`
	Tags       []string  `json:"tags,omitempty"`
	Importance float32   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// Execute runs the memory_search tool.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return &agent.ToolResult{Content: "vector memory is unavailable", IsError: true}, nil
	}

	var input searchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	scopes := []models.MemoryScope{models.GlobalScope}
	if t.chatID != "" {
		scopes = append(scopes, models.ChatScope(t.chatID))
	}

	resp, err := t.manager.Search(ctx, &models.SearchRequest{
		Query:     query,
		Scopes:    scopes,
		Limit:     input.Limit,
		Threshold: input.Threshold,
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}

	views := make([]searchResultView, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Record == nil {
			continue
		}
		views = append(views, searchResultView{
			ID:         r.Record.ID,
			Content:    r.Record.Content,
			Score:      r.Score,
			Scope:      string(r.Record.Scope),
			Tags:       r.Record.Tags,
			Importance: r.Record.Importance,
			CreatedAt:  r.Record.CreatedAt,
		})
	}

	encoded, err := json.Marshal(views)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to encode results: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(encoded)}, nil
}
