package context

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestFindLatestSummary_ReturnsMostRecentCompressed(t *testing.T) {
	older := newMessage(models.RoleSystem, "old summary")
	older.Compressed = true
	newer := newMessage(models.RoleSystem, "new summary")
	newer.Compressed = true

	history := []*models.Message{
		older,
		newMessage(models.RoleUser, "hi"),
		newer,
		newMessage(models.RoleAssistant, "hello"),
	}

	got := FindLatestSummary(history)
	if got != newer {
		t.Fatalf("FindLatestSummary() = %v, want the later summary", got)
	}
}

func TestFindLatestSummary_NilWhenNeverCompressed(t *testing.T) {
	history := []*models.Message{newMessage(models.RoleUser, "hi")}
	if got := FindLatestSummary(history); got != nil {
		t.Fatalf("FindLatestSummary() = %v, want nil", got)
	}
}

func TestMessagesSinceSummary_NilSummaryReturnsAll(t *testing.T) {
	history := []*models.Message{newMessage(models.RoleUser, "a"), newMessage(models.RoleUser, "b")}
	got := MessagesSinceSummary(history, nil)
	if len(got) != 2 {
		t.Fatalf("MessagesSinceSummary() len = %d, want 2", len(got))
	}
}

func TestMessagesSinceSummary_AfterKnownSummary(t *testing.T) {
	summary := newMessage(models.RoleSystem, "summary")
	summary.ID = "summary-1"
	summary.Compressed = true

	after1 := newMessage(models.RoleUser, "after 1")
	after2 := newMessage(models.RoleAssistant, "after 2")

	history := []*models.Message{
		newMessage(models.RoleUser, "before"),
		summary,
		after1,
		after2,
	}

	got := MessagesSinceSummary(history, summary)
	if len(got) != 2 || got[0] != after1 || got[1] != after2 {
		t.Fatalf("MessagesSinceSummary() = %v, want [after1, after2]", got)
	}
}

func TestCreateSummaryMessage_IsMarkedCompressed(t *testing.T) {
	msg := CreateSummaryMessage("chat-1", "the gist")
	if !msg.Compressed {
		t.Error("expected Compressed = true")
	}
	if msg.Role != models.RoleSystem {
		t.Errorf("Role = %v, want RoleSystem", msg.Role)
	}
	if msg.ChatID != "chat-1" || msg.Content != "the gist" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
