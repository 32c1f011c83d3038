package models

import "time"

type EmailTemplate struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	BodyHTML  string    `json:"body_html"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignCancelled CampaignStatus = "cancelled"
)

type Campaign struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	OwnerID       int64           `json:"owner_id"`
	Name          string          `json:"name"`
	TemplateID    int64           `json:"template_id"`
	AudienceStage *LifecycleStage `json:"audience_stage,omitempty"`
	Status        CampaignStatus  `json:"status"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	Recipients    int             `json:"recipients"`
	SentCount     int             `json:"sent_count"`
	FailedCount   int             `json:"failed_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
