package services

// Allowed status transitions. Terminal states map to an empty set.
var TaskTransitions = map[string]map[string]bool{
	"new":         {"in_progress": true, "cancelled": true},
	"in_progress": {"done": true, "cancelled": true},
	"done":        {},
	"cancelled":   {},
}

var QuoteTransitions = map[string]map[string]bool{
	"draft":    {"sent": true},
	"sent":     {"viewed": true, "signed": true, "declined": true, "expired": true},
	"viewed":   {"signed": true, "declined": true, "expired": true},
	"signed":   {},
	"declined": {},
	"expired":  {},
}

// sending -> sent is written by RecordResult, not by a transition call.
var CampaignTransitions = map[string]map[string]bool{
	"draft":     {"scheduled": true, "sending": true, "cancelled": true},
	"scheduled": {"draft": true, "sending": true, "cancelled": true},
	"sending":   {"sent": true},
	"sent":      {},
	"cancelled": {},
}

func canTransition(current, to string, table map[string]map[string]bool) bool {
	nexts, ok := table[current]
	if !ok {
		return false
	}
	return nexts[to]
}
