package agent

import (
	"context"
	"encoding/json"
)

// SideEffectClass tags what a tool is allowed to touch, independent of what
// it actually does. The loop uses it for two things: deciding which calls
// count toward loop-protection dedup (network, write and exec calls do, read
// and memory calls do not), and recognizing the distinguished finish tool.
type SideEffectClass string

const (
	SideEffectRead    SideEffectClass = "read"
	SideEffectWrite   SideEffectClass = "write"
	SideEffectExec    SideEffectClass = "exec"
	SideEffectNetwork SideEffectClass = "network"
	SideEffectMemory  SideEffectClass = "memory"
	SideEffectFinish  SideEffectClass = "finish"
)

// FinishToolName is the distinguished tool that ends a ReAct run. Its single
// parameter, final_answer, becomes the loop's returned answer.
const FinishToolName = "finish"

// Tool is the calling contract every leaf tool implements. What a tool
// concretely does (hit the filesystem, the network, a shell) is out of
// scope; only this contract matters to the loop and registry.
type Tool interface {
	Name() string
	Description() string
	SideEffectClass() SideEffectClass
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the Observation produced by a tool call.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// LLMProvider is the local inference endpoint the loop drives. It has no
// notion of native tool-calling: the model always returns raw text, which
// the response parser (C1) turns into a Thought/Tool/Params triple.
type LLMProvider interface {
	// Generate produces a completion for the given chat-formatted prompt.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// GenerateRequest bundles the parameters of one generate() call.
type GenerateRequest struct {
	Messages    []PromptMessage
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// PromptMessage is one role/content pair sent to the model.
type PromptMessage struct {
	Role    string
	Content string
}

// Tokenizer counts tokens the way the target model would, so the context
// manager's budget math lines up with what the model actually sees.
type Tokenizer interface {
	Count(text string) int
}

// Embedder produces a fixed-dimension embedding for L3 storage and search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
