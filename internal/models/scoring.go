package models

import "time"

// ScoringModel turns contact events into points and points into a lifecycle stage.
type ScoringModel struct {
	ID         int64            `json:"id"`
	TenantID   int64            `json:"tenant_id"`
	Name       string           `json:"name"`
	Active     bool             `json:"active"`
	Rules      []ScoringRule    `json:"rules"`
	Thresholds []ScoreThreshold `json:"thresholds"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type ScoringRule struct {
	EventType string `json:"event_type"`
	Points    int    `json:"points"`
}

type ScoreThreshold struct {
	MinScore int            `json:"min_score"`
	Stage    LifecycleStage `json:"stage"`
}

// ScoreEvent is one scored interaction recorded on a contact.
type ScoreEvent struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	ContactID  int64     `json:"contact_id"`
	EventType  string    `json:"event_type"`
	Points     int       `json:"points"`
	ScoreAfter int       `json:"score_after"`
	CreatedAt  time.Time `json:"created_at"`
}
