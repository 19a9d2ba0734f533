package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// LoopConfig configures the ReAct control loop.
type LoopConfig struct {
	// MaxCycles bounds how many Thought/Action/Observation cycles a single
	// run may take before it fails with CycleLimitExceededError.
	// Default: 50.
	MaxCycles int

	// MaxTokens is the max_tokens passed to each Generate call.
	MaxTokens int

	// Temperature is passed to each Generate call.
	Temperature float32

	// ReflectionDirective is appended to the prompt the cycle after a tool
	// call fails, once per cycle, nudging the model to reconsider its
	// approach instead of repeating the same mistake.
	ReflectionDirective string
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxCycles:   50,
		MaxTokens:   1024,
		Temperature: 0.2,
		ReflectionDirective: "Your last tool call failed. Before trying again, state in one sentence " +
			"why it failed and what you will do differently.",
	}
}

func sanitizeLoopConfig(cfg *LoopConfig) *LoopConfig {
	if cfg == nil {
		return DefaultLoopConfig()
	}
	out := *cfg
	defaults := DefaultLoopConfig()
	if out.MaxCycles <= 0 {
		out.MaxCycles = defaults.MaxCycles
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaults.MaxTokens
	}
	if out.ReflectionDirective == "" {
		out.ReflectionDirective = defaults.ReflectionDirective
	}
	return &out
}

// Loop drives the Thought -> Action -> Observation cycle: it prompts the
// model, parses its raw text response into a ParsedResponse, executes the
// named tool (or stops at the distinguished finish tool), and feeds the
// observation back in as the next turn.
type Loop struct {
	provider LLMProvider
	registry *ToolRegistry
	config   *LoopConfig
}

// NewLoop creates a ReAct loop over provider and registry.
func NewLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig) *Loop {
	return &Loop{provider: provider, registry: registry, config: sanitizeLoopConfig(config)}
}

// CycleRecord is one Thought/Action/Observation turn, kept for the L1
// scratchpad and for diagnostics.
type CycleRecord struct {
	Cycle       int
	Phase       LoopPhase
	Thought     string
	ToolName    string
	ToolParams  json.RawMessage
	Observation string
	IsError     bool
}

// Result is the outcome of a completed Run.
type Result struct {
	FinalAnswer string
	Cycles      []CycleRecord
	CyclesUsed  int
}

// Run executes the ReAct loop starting from the given prompt messages,
// appending each cycle's turn to the conversation before the next Generate
// call, until the model calls finish or an error ends the run.
func (l *Loop) Run(ctx context.Context, messages []PromptMessage) (*Result, error) {
	if l.provider == nil {
		return nil, errors.New("agent: loop has no LLM provider")
	}
	if l.registry == nil {
		return nil, errors.New("agent: loop has no tool registry")
	}

	conversation := append([]PromptMessage(nil), messages...)
	result := &Result{}
	seen := newCallFingerprints()
	reflectedThisCycle := false

	for cycle := 1; cycle <= l.config.MaxCycles; cycle++ {
		reflectedThisCycle = false

		raw, err := l.provider.Generate(ctx, &GenerateRequest{
			Messages:    conversation,
			MaxTokens:   l.config.MaxTokens,
			Temperature: l.config.Temperature,
		})
		if err != nil {
			return result, fmt.Errorf("agent: generate cycle %d: %w", cycle, err)
		}
		conversation = append(conversation, PromptMessage{Role: "assistant", Content: raw})

		parsed, err := ParseResponse(raw)
		if err != nil {
			record := CycleRecord{Cycle: cycle, Phase: PhaseThought, IsError: true, Observation: err.Error()}
			result.Cycles = append(result.Cycles, record)
			conversation = append(conversation, PromptMessage{
				Role:    "user",
				Content: fmt.Sprintf("Observation: could not parse your response (%s). Respond using the <THOUGHT>/<TOOL>/<PARAMS>/<END> format.", err.Error()),
			})
			continue
		}

		record := CycleRecord{Cycle: cycle, Phase: PhaseAction, Thought: parsed.Thought, ToolName: parsed.ToolName, ToolParams: parsed.ToolParams}

		if parsed.ToolName == FinishToolName {
			result.FinalAnswer = finishAnswer(parsed.ToolParams, parsed.Content)
			result.Cycles = append(result.Cycles, record)
			result.CyclesUsed = cycle
			return result, nil
		}

		tool, ok := l.registry.Get(parsed.ToolName)
		if !ok {
			record.IsError = true
			record.Observation = fmt.Sprintf("unknown tool %q", parsed.ToolName)
			result.Cycles = append(result.Cycles, record)
			conversation = append(conversation, PromptMessage{Role: "user", Content: "Observation: " + record.Observation})
			continue
		}

		if tool.SideEffectClass() == SideEffectNetwork || tool.SideEffectClass() == SideEffectWrite || tool.SideEffectClass() == SideEffectExec {
			fingerprint := fingerprintCall(parsed.ToolName, parsed.ToolParams)
			if seen.seenBefore(fingerprint) {
				record.IsError = true
				record.Observation = "loop detected: this exact tool call was already made this run; try a different action"
				result.Cycles = append(result.Cycles, record)
				conversation = append(conversation, PromptMessage{Role: "user", Content: "Observation: " + record.Observation})
				continue
			}
			seen.record(fingerprint)
		}

		toolResult, err := l.registry.Execute(ctx, parsed.ToolName, parsed.ToolParams)
		if err != nil {
			record.IsError = true
			record.Observation = err.Error()
		} else {
			record.IsError = toolResult.IsError
			record.Observation = toolResult.Content
		}
		result.Cycles = append(result.Cycles, record)

		observation := "Observation: " + record.Observation
		if record.IsError && !reflectedThisCycle {
			observation = observation + "\n\n" + l.config.ReflectionDirective
			reflectedThisCycle = true
		}
		conversation = append(conversation, PromptMessage{Role: "user", Content: observation})
	}

	return result, &CycleLimitExceededError{MaxCycles: l.config.MaxCycles}
}

func finishAnswer(params json.RawMessage, fallback string) string {
	var input struct {
		FinalAnswer string `json:"final_answer"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err == nil && input.FinalAnswer != "" {
			return input.FinalAnswer
		}
	}
	return fallback
}

// callFingerprints tracks which (tool, normalized params) pairs have already
// been executed this run, so loop-protection can catch a model stuck
// repeating the same network/write/exec call.
type callFingerprints struct {
	seen map[string]struct{}
}

func newCallFingerprints() *callFingerprints {
	return &callFingerprints{seen: make(map[string]struct{})}
}

func (c *callFingerprints) seenBefore(fingerprint string) bool {
	_, ok := c.seen[fingerprint]
	return ok
}

func (c *callFingerprints) record(fingerprint string) {
	c.seen[fingerprint] = struct{}{}
}

// fingerprintCall normalizes a tool name and its params into a stable key:
// params are decoded and their object keys sorted before hashing, so
// semantically identical calls with differently-ordered JSON keys collide.
func fingerprintCall(name string, params json.RawMessage) string {
	normalized := normalizeJSON(params)
	h := sha256.Sum256([]byte(name + ":" + normalized))
	return hex.EncodeToString(h[:])
}

func normalizeJSON(raw json.RawMessage) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	var sb strings.Builder
	writeNormalized(&sb, value)
	return sb.String()
}

func writeNormalized(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte(':')
			writeNormalized(sb, v[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeNormalized(sb, item)
		}
		sb.WriteByte(']')
	default:
		encoded, _ := json.Marshal(v)
		sb.Write(encoded)
	}
}
