package context

import (
	"github.com/haasonsaas/nexus/pkg/models"
)

// FindLatestSummary finds the most recent compressed message in history.
// Returns nil if history has never been compressed.
func FindLatestSummary(history []*models.Message) *models.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m != nil && m.Compressed {
			return m
		}
	}
	return nil
}

// MessagesSinceSummary returns messages that came after the given summary.
// If summary is nil, returns all messages.
func MessagesSinceSummary(history []*models.Message, summary *models.Message) []*models.Message {
	if summary == nil {
		return history
	}

	summaryIdx := -1
	for i, m := range history {
		if m != nil && m.ID == summary.ID {
			summaryIdx = i
			break
		}
	}
	if summaryIdx < 0 {
		return history
	}
	if summaryIdx+1 >= len(history) {
		return nil
	}
	return history[summaryIdx+1:]
}

// CreateSummaryMessage builds the system-role message that replaces a
// compressed span of history.
func CreateSummaryMessage(chatID, summaryContent string) *models.Message {
	return &models.Message{
		ChatID:     chatID,
		Role:       models.RoleSystem,
		Content:    summaryContent,
		Compressed: true,
	}
}
