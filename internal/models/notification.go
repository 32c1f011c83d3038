package models

import "time"

type NotificationKind string

const (
	NotifyTaskAssigned   NotificationKind = "task_assigned"
	NotifyTaskReminder   NotificationKind = "task_reminder"
	NotifyMeetingInvite  NotificationKind = "meeting_invite"
	NotifyQuoteStatus    NotificationKind = "quote_status"
	NotifyLeadPromoted   NotificationKind = "lead_promoted"
	NotifyCampaignResult NotificationKind = "campaign_result"
)

type Notification struct {
	ID         int64            `json:"id"`
	TenantID   int64            `json:"tenant_id"`
	UserID     int64            `json:"user_id"`
	Kind       NotificationKind `json:"kind"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	EntityType string           `json:"entity_type,omitempty"`
	EntityID   int64            `json:"entity_id,omitempty"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
