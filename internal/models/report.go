package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ReportFilter struct {
	Field string          `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ReportDefinition is a saved ad-hoc query over one CRM entity.
type ReportDefinition struct {
	ID        int64          `json:"id"`
	TenantID  int64          `json:"tenant_id"`
	OwnerID   int64          `json:"owner_id"`
	Name      string         `json:"name"`
	Entity    string         `json:"entity"`
	Columns   []string       `json:"columns"`
	Filters   []ReportFilter `json:"filters"`
	SortBy    string         `json:"sort_by"`
	SortOrder string         `json:"sort_order"`
	Limit     int            `json:"limit"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type ReportResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type PipelineSummary struct {
	OpenDeals       int                    `json:"open_deals"`
	OpenValue       decimal.Decimal        `json:"open_value"`
	WeightedValue   decimal.Decimal        `json:"weighted_value"`
	WonDeals        int                    `json:"won_deals"`
	WonValue        decimal.Decimal        `json:"won_value"`
	LostDeals       int                    `json:"lost_deals"`
	ContactsByStage map[LifecycleStage]int `json:"contacts_by_stage"`
}
