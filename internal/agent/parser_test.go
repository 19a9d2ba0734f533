package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseResponse_FlagFormatExtractsAllBlocks(t *testing.T) {
	raw := "<THOUGHT>\nI should check the weather\n<TOOL>\nget_weather\n<PARAMS>\n{\"city\":\"nyc\"}\n<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Thought != "I should check the weather" {
		t.Errorf("Thought = %q", parsed.Thought)
	}
	if parsed.ToolName != "get_weather" {
		t.Errorf("ToolName = %q", parsed.ToolName)
	}
	if string(parsed.ToolParams) != `{"city":"nyc"}` {
		t.Errorf("ToolParams = %q", parsed.ToolParams)
	}
}

func TestParseResponse_ContentPreservesInteriorWhitespaceVerbatim(t *testing.T) {
	// A payload with leading spaces, blank lines, and a trailing newline —
	// property 4 requires parse(emit(s)) == s for anything between
	// <CONTENT> and <END>.
	body := "  def foo():\n      return 1\n\n  # trailing comment\n"
	raw := "<THOUGHT>\ndone\n<TOOL>\nfinish\n<CONTENT>\n" + body + "<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Content != body {
		t.Errorf("Content = %q, want %q (verbatim)", parsed.Content, body)
	}
}

func TestParseResponse_ContentLeadingAndTrailingBlankLinesSurvive(t *testing.T) {
	body := "\nindented\n\n"
	raw := "<TOOL>\nfinish\n<CONTENT>\n" + body + "<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Content != body {
		t.Errorf("Content = %q, want %q", parsed.Content, body)
	}
}

func TestParseResponse_ThoughtAndToolAreTrimmed(t *testing.T) {
	raw := "<THOUGHT>\n   spaced thought   \n<TOOL>\n  finish  \n<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Thought != "spaced thought" {
		t.Errorf("Thought = %q, want trimmed", parsed.Thought)
	}
	if parsed.ToolName != "finish" {
		t.Errorf("ToolName = %q, want trimmed", parsed.ToolName)
	}
}

func TestParseResponse_ParamsWithDecimalsAndNestedBraces(t *testing.T) {
	raw := "<TOOL>\ncalculate\n<PARAMS>\n" +
		`{"amount": 19.99, "meta": {"nested": {"deep": 3.14}}}` +
		"\n<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(parsed.ToolParams, &decoded); err != nil {
		t.Fatalf("ToolParams did not round-trip as JSON: %v (%q)", err, parsed.ToolParams)
	}
	if !strings.Contains(string(parsed.ToolParams), "19.99") {
		t.Errorf("ToolParams lost a decimal value: %q", parsed.ToolParams)
	}
}

func TestParseResponse_ContentWithRawMultilineCode(t *testing.T) {
	code := "<PARAMS>\nfunc main() {\n\tif true {\n\t\tfmt.Println(\"{nested}\")\n\t}\n}\n"
	raw := "<TOOL>\nfinish\n<CONTENT>\n" + code + "<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Content != code {
		t.Errorf("Content with embedded flag-like text and braces was mangled: %q", parsed.Content)
	}
}

func TestParseResponse_FinishSynthesizesParamsFromContent(t *testing.T) {
	raw := "<TOOL>\n" + FinishToolName + "\n<CONTENT>\nall done\n<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	var decoded struct {
		FinalAnswer string `json:"final_answer"`
	}
	if err := json.Unmarshal(parsed.ToolParams, &decoded); err != nil {
		t.Fatalf("ToolParams not valid JSON: %v", err)
	}
	if decoded.FinalAnswer != "all done" {
		t.Errorf("final_answer = %q, want %q", decoded.FinalAnswer, "all done")
	}
}

func TestParseResponse_JSONFallbackWhenNoFlags(t *testing.T) {
	raw := `{"thought": "checking", "tool": "get_weather", "params": {"city": "nyc"}}`

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.ToolName != "get_weather" {
		t.Errorf("ToolName = %q", parsed.ToolName)
	}
	if parsed.Thought != "checking" {
		t.Errorf("Thought = %q", parsed.Thought)
	}
}

func TestParseResponse_JSONFallbackAcceptsActionAndParametersAliases(t *testing.T) {
	raw := `some preamble text {"action": "search", "parameters": {"q": "nested {braces} here"}} trailing`

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.ToolName != "search" {
		t.Errorf("ToolName = %q, want search", parsed.ToolName)
	}
	if !strings.Contains(string(parsed.ToolParams), "nested {braces} here") {
		t.Errorf("ToolParams = %q, lost nested braces", parsed.ToolParams)
	}
}

func TestParseResponse_JSONFallbackFinalAnswerAlias(t *testing.T) {
	raw := `{"final_answer": "the answer is 42"}`

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Content != "the answer is 42" {
		t.Errorf("Content = %q", parsed.Content)
	}
}

func TestParseResponse_ErrorsWhenNeitherFormatYieldsToolOrContent(t *testing.T) {
	_, err := ParseResponse("just some prose with no flags and no json")
	if err == nil {
		t.Fatal("expected a ParseError")
	}
	var perr *ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParseResponse_EmptyThoughtBlockIsTolerated(t *testing.T) {
	raw := "<THOUGHT>\n<TOOL>\nfinish\n<CONTENT>\nok\n<END>"

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if parsed.Thought != "" {
		t.Errorf("Thought = %q, want empty", parsed.Thought)
	}
}

func asParseError(err error, target **ParseError) bool {
	if pe, ok := err.(*ParseError); ok {
		*target = pe
		return true
	}
	return false
}
