package agent

import (
	"encoding/json"
	"strings"
)

// Flag tokens delimiting the primary response format. Each owns every line
// up to the next flag (or <END>).
const (
	flagThought = "<THOUGHT>"
	flagTool    = "<TOOL>"
	flagParams  = "<PARAMS>"
	flagContent = "<CONTENT>"
	flagEnd     = "<END>"
)

// ParsedResponse is the Thought/Tool/Params/Content triple extracted from one
// raw model turn.
//
// Exactly one of ToolName or Content is expected to be meaningful: a turn
// that calls a tool carries ToolParams for it, a turn that calls finish or
// answers directly without a tool carries Content.
type ParsedResponse struct {
	Thought    string
	ToolName   string
	ToolParams json.RawMessage
	Content    string
}

// ParseResponse turns the model's raw text into a ParsedResponse, trying the
// flag-delimited format first and falling back to a bare JSON object. It
// returns a *ParseError only when neither format yields a tool name or
// content — an empty <THOUGHT> block, by contrast, is tolerated and
// synthesized as "".
func ParseResponse(raw string) (*ParsedResponse, error) {
	if parsed, ok := parseFlagFormat(raw); ok {
		return parsed, nil
	}
	if parsed, ok := parseJSONFallback(raw); ok {
		return parsed, nil
	}
	return nil, &ParseError{Raw: raw, Message: "no tool name or content found in flag-delimited or JSON response"}
}

func parseFlagFormat(raw string) (*ParsedResponse, bool) {
	lines := strings.Split(raw, "\n")
	blocks := map[string][]string{}
	current := ""
	sawAnyFlag := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case flagThought, flagTool, flagParams, flagContent:
			current = trimmed
			sawAnyFlag = true
			continue
		case flagEnd:
			current = ""
			sawAnyFlag = true
			continue
		}
		if current != "" {
			blocks[current] = append(blocks[current], line)
		}
	}

	if !sawAnyFlag {
		return nil, false
	}

	thought := strings.TrimSpace(strings.Join(blocks[flagThought], "\n"))
	toolName := strings.TrimSpace(strings.Join(blocks[flagTool], "\n"))
	paramsText := strings.TrimSpace(strings.Join(blocks[flagParams], "\n"))
	// <CONTENT> preserves interior whitespace verbatim, per the flag
	// format's raw-bytes contract: no TrimSpace here.
	content := strings.Join(blocks[flagContent], "\n")

	if toolName == "" && content == "" {
		return nil, false
	}

	var params json.RawMessage
	if paramsText != "" {
		params = json.RawMessage(paramsText)
	}
	if toolName == FinishToolName && len(params) == 0 && content != "" {
		params = synthesizeFinishParams(content)
	}

	return &ParsedResponse{
		Thought:    thought,
		ToolName:   toolName,
		ToolParams: params,
		Content:    content,
	}, true
}

// jsonFallbackShape is intentionally permissive about field naming since the
// model is not given a strict JSON schema to follow in this mode.
type jsonFallbackShape struct {
	Thought     string          `json:"thought"`
	Tool        string          `json:"tool"`
	Action      string          `json:"action"`
	Params      json.RawMessage `json:"params"`
	Parameters  json.RawMessage `json:"parameters"`
	Content     string          `json:"content"`
	FinalAnswer string          `json:"final_answer"`
}

func parseJSONFallback(raw string) (*ParsedResponse, bool) {
	trimmed := strings.TrimSpace(raw)
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end < start {
		return nil, false
	}
	candidate := trimmed[start : end+1]

	var shape jsonFallbackShape
	if err := json.Unmarshal([]byte(candidate), &shape); err != nil {
		return nil, false
	}

	toolName := shape.Tool
	if toolName == "" {
		toolName = shape.Action
	}
	params := shape.Params
	if len(params) == 0 {
		params = shape.Parameters
	}
	content := shape.Content
	if content == "" {
		content = shape.FinalAnswer
	}

	if toolName == "" && content == "" {
		return nil, false
	}
	if toolName == FinishToolName && len(params) == 0 && content != "" {
		params = synthesizeFinishParams(content)
	}

	return &ParsedResponse{
		Thought:    shape.Thought,
		ToolName:   toolName,
		ToolParams: params,
		Content:    content,
	}, true
}

func synthesizeFinishParams(finalAnswer string) json.RawMessage {
	encoded, err := json.Marshal(struct {
		FinalAnswer string `json:"final_answer"`
	}{FinalAnswer: finalAnswer})
	if err != nil {
		return nil
	}
	return encoded
}
