package vectormemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Adder is the subset of *memory.Manager the write tool needs.
type Adder interface {
	Add(ctx context.Context, scope models.MemoryScope, content string, tags []string) (*models.MemoryRecord, error)
}

// WriteTool stores a fact in long-term memory, either in the global scope
// or scoped to the active chat.
type WriteTool struct {
	manager Adder
	chatID  string
}

// NewWriteTool creates a memory_write tool bound to chatID.
func NewWriteTool(manager Adder, chatID string) *WriteTool {
	return &WriteTool{manager: manager, chatID: chatID}
}

func (t *WriteTool) Name() string { return "memory_write" }
func (t *WriteTool) Description() string {
	return "Stores a fact in long-term memory, either globally or scoped to this chat."
}
func (t *WriteTool) SideEffectClass() agent.SideEffectClass { return agent.SideEffectMemory }

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "content": {"type": "string", "description": "Fact to remember"},
    "tags": {"type": "array", "items": {"type": "string"}, "description": "Optional tags for categorization"},
    "scope": {
      "type": "string",
      "enum": ["global", "chat"],
      "description": "Where to store the fact: global (visible to every chat) or chat (this chat only). Defaults to chat."
    }
  },
  "required": ["content"]
}`)
}

type writeInput struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Scope   string   `json:"scope"`
}

// Execute runs the memory_write tool.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return &agent.ToolResult{Content: "long-term memory is unavailable", IsError: true}, nil
	}

	var input writeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return &agent.ToolResult{Content: "content is required", IsError: true}, nil
	}

	scope := models.ChatScope(t.chatID)
	switch strings.ToLower(strings.TrimSpace(input.Scope)) {
	case "global":
		scope = models.GlobalScope
	case "", "chat":
		if t.chatID == "" {
			scope = models.GlobalScope
		}
	default:
		return &agent.ToolResult{Content: fmt.Sprintf("unsupported scope %q", input.Scope), IsError: true}, nil
	}

	record, err := t.manager.Add(ctx, scope, content, normalizeTags(input.Tags))
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to write memory: %v", err), IsError: true}, nil
	}

	payload, err := json.MarshalIndent(struct {
		ID    string `json:"id"`
		Scope string `json:"scope"`
	}{ID: record.ID, Scope: string(record.Scope)}, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to encode response: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
