package models

import "time"

// LifecycleStage is the marketing/sales stage of a contact.
type LifecycleStage string

const (
	StageSubscriber  LifecycleStage = "subscriber"
	StageLead        LifecycleStage = "lead"
	StageMQL         LifecycleStage = "mql"
	StageSQL         LifecycleStage = "sql"
	StageOpportunity LifecycleStage = "opportunity"
	StageCustomer    LifecycleStage = "customer"
)

var lifecycleOrder = []LifecycleStage{
	StageSubscriber,
	StageLead,
	StageMQL,
	StageSQL,
	StageOpportunity,
	StageCustomer,
}

// Rank returns the position of the stage in the lifecycle, or -1.
func (s LifecycleStage) Rank() int {
	for i, st := range lifecycleOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s LifecycleStage) Valid() bool { return s.Rank() >= 0 }

type Contact struct {
	ID             int64          `json:"id"`
	TenantID       int64          `json:"tenant_id"`
	OwnerID        int64          `json:"owner_id"`
	CompanyID      *int64         `json:"company_id,omitempty"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	Title          string         `json:"title"`
	LifecycleStage LifecycleStage `json:"lifecycle_stage"`
	Score          int            `json:"score"`
	Unsubscribed   bool           `json:"unsubscribed"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type ContactFilter struct {
	OwnerID   *int64
	CompanyID *int64
	Stage     *LifecycleStage
	Query     string
	Limit     int
	Offset    int
}

// AudienceFilter selects campaign recipients.
type AudienceFilter struct {
	Stage *LifecycleStage
}
