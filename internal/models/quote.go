package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteViewed   QuoteStatus = "viewed"
	QuoteSigned   QuoteStatus = "signed"
	QuoteDeclined QuoteStatus = "declined"
	QuoteExpired  QuoteStatus = "expired"
)

type Quote struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	DealID            int64           `json:"deal_id"`
	OwnerID           int64           `json:"owner_id"`
	Number            string          `json:"number"`
	Title             string          `json:"title"`
	Status            QuoteStatus     `json:"status"`
	Currency          string          `json:"currency"`
	Items             []QuoteItem     `json:"items"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	TaxPercent        decimal.Decimal `json:"tax_percent"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountTotal     decimal.Decimal `json:"discount_total"`
	TaxTotal          decimal.Decimal `json:"tax_total"`
	Total             decimal.Decimal `json:"total"`
	ValidUntil        *time.Time      `json:"valid_until,omitempty"`
	SignatureProvider string          `json:"signature_provider,omitempty"`
	EnvelopeID        string          `json:"envelope_id,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	SignedAt          *time.Time      `json:"signed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type QuoteItem struct {
	ID        int64           `json:"id"`
	QuoteID   int64           `json:"quote_id"`
	Position  int             `json:"position"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type QuoteFilter struct {
	DealID  *int64
	OwnerID *int64
	Status  *QuoteStatus
	Limit   int
	Offset  int
}
