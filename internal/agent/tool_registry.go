package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits, kept to prevent a misbehaving model response from
// forcing the loop to hold unbounded memory.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// ToolRegistry maps tool names to their schema and handler. Registration is
// expected at startup; lookup and execution happen on every cycle.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates a registry with the built-in finish tool already
// registered, since every run needs a way to terminate.
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	r.Register(newFinishTool())
	return r
}

// Register adds a tool, compiling its schema up front so a bad schema fails
// at startup rather than on the first call. Re-registering a name replaces it.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool registry: nil tool")
	}
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("tool registry: invalid tool name %q", name)
	}

	compiled, err := compileSchema(name, tool.Schema())
	if err != nil {
		return fmt.Errorf("tool registry: compile schema for %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.schemas[name] = compiled
	return nil
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name and whether it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, for building the system prompt's tool
// catalogue.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute validates params against the tool's schema and, if valid, runs it.
// A missing tool or schema violation is reported as a ToolError rather than
// a Go error, since from the loop's perspective this is just an Observation.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return nil, NewToolError(name, fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength)).WithType(ToolErrorInvalidInput)
	}
	if len(params) > MaxToolParamsSize {
		return nil, NewToolError(name, fmt.Errorf("tool parameters exceed %d bytes", MaxToolParamsSize)).WithType(ToolErrorInvalidInput)
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, NewToolError(name, ErrToolNotFound).WithType(ToolErrorNotFound)
	}

	if schema != nil {
		if err := validateParams(schema, params); err != nil {
			return nil, NewToolError(name, err).WithType(ToolErrorInvalidInput)
		}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return nil, NewToolError(name, err)
	}
	return result, nil
}

// WithType is a convenience for chaining a specific classification onto a
// freshly constructed ToolError.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

func validateParams(schema *jsonschema.Schema, params json.RawMessage) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("params is not valid json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("params failed schema validation: %w", err)
	}
	return nil
}

// finishTool is the distinguished terminating tool. Its handler never
// actually runs: the loop intercepts a call to "finish" before dispatch and
// ends the run with final_answer as the result.
type finishTool struct{}

func newFinishTool() *finishTool { return &finishTool{} }

func (finishTool) Name() string            { return FinishToolName }
func (finishTool) Description() string     { return "End the run and return the final answer to the user." }
func (finishTool) SideEffectClass() SideEffectClass { return SideEffectFinish }
func (finishTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"final_answer": {"type": "string"}
		},
		"required": ["final_answer"]
	}`)
}

func (finishTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var input struct {
		FinalAnswer string `json:"final_answer"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid finish params: %w", err)
	}
	return &ToolResult{Content: input.FinalAnswer}, nil
}
