package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		table   map[string]map[string]bool
		from    string
		to      string
		allowed bool
	}{
		{"task start", TaskTransitions, "new", "in_progress", true},
		{"task cancel new", TaskTransitions, "new", "cancelled", true},
		{"task skip to done", TaskTransitions, "new", "done", false},
		{"task finish", TaskTransitions, "in_progress", "done", true},
		{"task reopen", TaskTransitions, "done", "in_progress", false},
		{"quote send", QuoteTransitions, "draft", "sent", true},
		{"quote sign unsent", QuoteTransitions, "draft", "signed", false},
		{"quote sign viewed", QuoteTransitions, "viewed", "signed", true},
		{"quote view after sign", QuoteTransitions, "signed", "viewed", false},
		{"quote back to sent", QuoteTransitions, "viewed", "sent", false},
		{"campaign schedule", CampaignTransitions, "draft", "scheduled", true},
		{"campaign resend", CampaignTransitions, "sent", "sending", false},
		{"unknown state", TaskTransitions, "", "new", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, canTransition(tt.from, tt.to, tt.table))
		})
	}
}
