package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryScope_GlobalAndChat(t *testing.T) {
	if GlobalScope != "global" {
		t.Errorf("GlobalScope = %q, want %q", GlobalScope, "global")
	}
	if got, want := ChatScope("abc-123"), MemoryScope("chat:abc-123"); got != want {
		t.Errorf("ChatScope() = %q, want %q", got, want)
	}
}

func TestMemoryRecord_EmbeddingNotSerialized(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	record := MemoryRecord{
		ID:         "mem-123",
		Scope:      GlobalScope,
		Content:    "remember this",
		Embedding:  []float32{0.1, 0.2, 0.3},
		Importance: 0.5,
		Tags:       []string{"important"},
		CreatedAt:  now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var decoded MemoryRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != record.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, record.ID)
	}
	if decoded.Embedding != nil {
		t.Error("Embedding should be nil after JSON round-trip (json:\"-\")")
	}
}

func TestSearchRequest_Struct(t *testing.T) {
	req := SearchRequest{
		Query:     "test search query",
		Scopes:    []MemoryScope{GlobalScope, ChatScope("chat-1")},
		Limit:     20,
		Threshold: 0.8,
	}

	if req.Query != "test search query" {
		t.Errorf("Query = %q, want %q", req.Query, "test search query")
	}
	if len(req.Scopes) != 2 {
		t.Errorf("Scopes length = %d, want 2", len(req.Scopes))
	}
	if req.Limit != 20 {
		t.Errorf("Limit = %d, want 20", req.Limit)
	}
}

func TestSearchResult_PairsRecordAndScore(t *testing.T) {
	record := &MemoryRecord{ID: "mem-123", Content: "test"}
	result := SearchResult{Record: record, Score: 0.92}

	if result.Record == nil {
		t.Fatal("Record is nil")
	}
	if result.Record.ID != "mem-123" {
		t.Errorf("Record.ID = %q, want %q", result.Record.ID, "mem-123")
	}
	if result.Score != 0.92 {
		t.Errorf("Score = %v, want 0.92", result.Score)
	}
}

func TestSearchResponse_Struct(t *testing.T) {
	response := SearchResponse{
		Results: []*SearchResult{
			{Score: 0.95},
			{Score: 0.90},
			{Score: 0.85},
		},
		QueryTime: 100 * time.Millisecond,
	}

	if len(response.Results) != 3 {
		t.Errorf("Results length = %d, want 3", len(response.Results))
	}
	if response.QueryTime != 100*time.Millisecond {
		t.Errorf("QueryTime = %v, want 100ms", response.QueryTime)
	}
}
