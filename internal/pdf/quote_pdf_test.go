package pdf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
)

func sampleQuote() *models.Quote {
	signed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return &models.Quote{
		Number:            "Q-000042",
		Title:             "Annual license",
		Status:            models.QuoteSigned,
		Currency:          "USD",
		Items: []models.QuoteItem{
			{Name: "Seats", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("12.50"), LineTotal: decimal.RequireFromString("125.00")},
		},
		DiscountPercent:   decimal.NewFromInt(10),
		TaxPercent:        decimal.NewFromInt(20),
		Subtotal:          decimal.RequireFromString("125.00"),
		DiscountTotal:     decimal.RequireFromString("12.50"),
		TaxTotal:          decimal.RequireFromString("22.50"),
		Total:             decimal.RequireFromString("135.00"),
		SignatureProvider: "docusign",
		SignedAt:          &signed,
		CreatedAt:         signed.Add(-24 * time.Hour),
	}
}

func TestQuoteRenderer_RenderQuote(t *testing.T) {
	r := NewQuoteRenderer(t.TempDir(), "")
	var buf bytes.Buffer
	require.NoError(t, r.RenderQuote(&buf, sampleQuote(), "Acme"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestQuoteRenderer_ArchiveQuote(t *testing.T) {
	root := t.TempDir()
	r := NewQuoteRenderer(root, "/does/not/exist.ttf")
	path, err := r.ArchiveQuote(sampleQuote(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "quotes", "Q-000042.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
