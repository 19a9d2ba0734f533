package vectormemory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

type fakeAdder struct {
	lastScope models.MemoryScope
	lastTags  []string
	record    *models.MemoryRecord
	err       error
}

func (f *fakeAdder) Add(_ context.Context, scope models.MemoryScope, content string, tags []string) (*models.MemoryRecord, error) {
	f.lastScope = scope
	f.lastTags = tags
	if f.err != nil {
		return nil, f.err
	}
	if f.record != nil {
		return f.record, nil
	}
	return &models.MemoryRecord{ID: "m1", Scope: scope, Content: content, Tags: tags}, nil
}

func TestWriteTool_DefaultsToChatScope(t *testing.T) {
	adder := &fakeAdder{}
	tool := NewWriteTool(adder, "chat-1")

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"user prefers dark mode","tags":["preference","ui"]}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	if adder.lastScope != models.ChatScope("chat-1") {
		t.Errorf("scope = %q, want %q", adder.lastScope, models.ChatScope("chat-1"))
	}
	if len(adder.lastTags) != 2 {
		t.Errorf("tags = %v, want 2 entries", adder.lastTags)
	}
}

func TestWriteTool_ExplicitGlobalScope(t *testing.T) {
	adder := &fakeAdder{}
	tool := NewWriteTool(adder, "chat-1")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"likes go","scope":"global"}`)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if adder.lastScope != models.GlobalScope {
		t.Errorf("scope = %q, want global", adder.lastScope)
	}
}

func TestWriteTool_NoChatIDFallsBackToGlobal(t *testing.T) {
	adder := &fakeAdder{}
	tool := NewWriteTool(adder, "")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"no chat context"}`)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if adder.lastScope != models.GlobalScope {
		t.Errorf("scope = %q, want global", adder.lastScope)
	}
}

func TestWriteTool_EmptyContentIsError(t *testing.T) {
	tool := NewWriteTool(&fakeAdder{}, "chat-1")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"   "}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for empty content")
	}
}

func TestWriteTool_InvalidScopeIsError(t *testing.T) {
	tool := NewWriteTool(&fakeAdder{}, "chat-1")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"x","scope":"bogus"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for invalid scope")
	}
}

func TestWriteTool_ManagerUnavailable(t *testing.T) {
	tool := NewWriteTool(nil, "chat-1")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"x"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error when manager is nil")
	}
}
