package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type StageKind string

const (
	StageKindOpen StageKind = "open"
	StageKindWon  StageKind = "won"
	StageKindLost StageKind = "lost"
)

type DealStatus string

const (
	DealOpen DealStatus = "open"
	DealWon  DealStatus = "won"
	DealLost DealStatus = "lost"
)

// StatusForStage maps a stage kind onto the status a deal takes there.
func StatusForStage(kind StageKind) DealStatus {
	switch kind {
	case StageKindWon:
		return DealWon
	case StageKindLost:
		return DealLost
	default:
		return DealOpen
	}
}

type Pipeline struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Stages    []Stage   `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

// Stage is one column of a pipeline board.
type Stage struct {
	ID          int64     `json:"id"`
	PipelineID  int64     `json:"pipeline_id"`
	Name        string    `json:"name"`
	Position    int       `json:"position"`
	Probability int       `json:"probability"`
	Kind        StageKind `json:"kind"`
}

// FirstStageOfKind returns the lowest positioned stage of the given kind.
func (p *Pipeline) FirstStageOfKind(kind StageKind) (*Stage, bool) {
	var found *Stage
	for i := range p.Stages {
		st := &p.Stages[i]
		if st.Kind != kind {
			continue
		}
		if found == nil || st.Position < found.Position {
			found = st
		}
	}
	return found, found != nil
}

func (p *Pipeline) Stage(id int64) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

type Deal struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	PipelineID        int64           `json:"pipeline_id"`
	StageID           int64           `json:"stage_id"`
	Position          int             `json:"position"`
	Title             string          `json:"title"`
	ContactID         *int64          `json:"contact_id,omitempty"`
	CompanyID         *int64          `json:"company_id,omitempty"`
	OwnerID           int64           `json:"owner_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Probability       int             `json:"probability"`
	Status            DealStatus      `json:"status"`
	ExpectedCloseDate *time.Time      `json:"expected_close_date,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Weighted is the amount scaled by the win probability.
func (d *Deal) Weighted() decimal.Decimal {
	return d.Amount.Mul(decimal.NewFromInt(int64(d.Probability))).Div(decimal.NewFromInt(100)).Round(2)
}

type DealFilter struct {
	PipelineID *int64
	StageID    *int64
	OwnerID    *int64
	ContactID  *int64
	Status     *DealStatus
	Currency   string
	AmountMin  *decimal.Decimal
	AmountMax  *decimal.Decimal
	From       *time.Time
	To         *time.Time
	SortBy     string
	Order      string
	Limit      int
	Offset     int
}

// DealMove is a fully computed stage move, persisted in one transaction.
type DealMove struct {
	DealID      int64
	ToStageID   int64
	Probability int
	Status      DealStatus
	ClosedAt    *time.Time
	// deal ids in their new order, index == position
	TargetOrder []int64
	SourceOrder []int64
}

type BoardColumn struct {
	Stage    Stage           `json:"stage"`
	Deals    []Deal          `json:"deals"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
	Weighted decimal.Decimal `json:"weighted"`
}

type Board struct {
	Pipeline Pipeline      `json:"pipeline"`
	Columns  []BoardColumn `json:"columns"`
}
