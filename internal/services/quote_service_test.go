package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	q := &models.Quote{
		Items: []models.QuoteItem{
			{Name: " Licence ", Quantity: dec("2"), UnitPrice: dec("19.99")},
			{Name: "Support", Quantity: dec("3"), UnitPrice: dec("10.005")},
		},
		DiscountPercent: dec("10"),
		TaxPercent:      dec("20"),
	}
	require.NoError(t, computeTotals(q))

	assert.Equal(t, "Licence", q.Items[0].Name)
	assert.Equal(t, 0, q.Items[0].Position)
	assert.Equal(t, 1, q.Items[1].Position)
	assert.True(t, dec("39.98").Equal(q.Items[0].LineTotal))
	assert.True(t, dec("30.02").Equal(q.Items[1].LineTotal))
	assert.True(t, dec("70").Equal(q.Subtotal), q.Subtotal.String())
	assert.True(t, dec("7").Equal(q.DiscountTotal), q.DiscountTotal.String())
	assert.True(t, dec("12.6").Equal(q.TaxTotal), q.TaxTotal.String())
	assert.True(t, dec("75.6").Equal(q.Total), q.Total.String())
}

func TestComputeTotals_Invalid(t *testing.T) {
	item := func() []models.QuoteItem {
		return []models.QuoteItem{{Name: "x", Quantity: dec("1"), UnitPrice: dec("1")}}
	}
	tests := []struct {
		name string
		q    models.Quote
	}{
		{"no items", models.Quote{}},
		{"discount above 100", models.Quote{Items: item(), DiscountPercent: dec("100.5")}},
		{"negative tax", models.Quote{Items: item(), TaxPercent: dec("-1")}},
		{"zero quantity", models.Quote{Items: []models.QuoteItem{{Name: "x", Quantity: dec("0"), UnitPrice: dec("1")}}}},
		{"negative price", models.Quote{Items: []models.QuoteItem{{Name: "x", Quantity: dec("1"), UnitPrice: dec("-1")}}}},
		{"unnamed item", models.Quote{Items: []models.QuoteItem{{Name: "  ", Quantity: dec("1"), UnitPrice: dec("1")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			err := computeTotals(&q)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

type quoteFixture struct {
	repo     *MockQuoteRepository
	deals    *MockDealService
	notifier *MockNotifier
	renderer *MockRenderer
	svc      QuoteService
}

func newQuoteFixture() *quoteFixture {
	f := &quoteFixture{
		repo:     new(MockQuoteRepository),
		deals:    new(MockDealService),
		notifier: new(MockNotifier),
		renderer: new(MockRenderer),
	}
	f.svc = NewQuoteService(f.repo, f.deals, f.notifier, f.renderer, "Acme", zap.NewNop())
	return f
}

func TestApplySignatureEvent_SignedClosesDeal(t *testing.T) {
	f := newQuoteFixture()
	ctx := context.Background()
	q := &models.Quote{ID: 7, DealID: 3, OwnerID: 11, Number: "Q-000007", Status: models.QuoteSent}

	f.repo.On("TransitionStatus", ctx, int64(7), models.QuoteSent, models.QuoteSigned, mock.AnythingOfType("time.Time")).Return(nil)
	f.deals.On("MoveToFirstWon", ctx, int64(3)).Return(&models.Deal{ID: 3, Status: models.DealWon}, nil)
	f.renderer.On("ArchiveQuote", q, "Acme").Return("files/quotes/Q-000007.pdf", nil)
	f.notifier.On("Notify", ctx, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 11 && n.Kind == models.NotifyQuoteStatus && n.EntityID == 7
	})).Return(nil)

	require.NoError(t, f.svc.ApplySignatureEvent(ctx, q, models.QuoteSigned))

	assert.Equal(t, models.QuoteSigned, q.Status)
	assert.NotNil(t, q.SignedAt)
	f.repo.AssertExpectations(t)
	f.deals.AssertExpectations(t)
	f.renderer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestApplySignatureEvent_RepeatedSignedOnlyClosesDeal(t *testing.T) {
	f := newQuoteFixture()
	ctx := context.Background()
	q := &models.Quote{ID: 7, DealID: 3, Status: models.QuoteSigned}

	f.deals.On("MoveToFirstWon", ctx, int64(3)).Return(&models.Deal{ID: 3}, nil)

	require.NoError(t, f.svc.ApplySignatureEvent(ctx, q, models.QuoteSigned))
	f.deals.AssertExpectations(t)
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestApplySignatureEvent_RejectsTerminal(t *testing.T) {
	f := newQuoteFixture()
	q := &models.Quote{ID: 7, Status: models.QuoteDeclined}

	err := f.svc.ApplySignatureEvent(context.Background(), q, models.QuoteSigned)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.QuoteDeclined, q.Status)
}

func TestApplySignatureEvent_DealFailureDoesNotFail(t *testing.T) {
	f := newQuoteFixture()
	ctx := context.Background()
	q := &models.Quote{ID: 8, DealID: 4, OwnerID: 2, Status: models.QuoteViewed}

	f.repo.On("TransitionStatus", ctx, int64(8), models.QuoteViewed, models.QuoteSigned, mock.Anything).Return(nil)
	f.deals.On("MoveToFirstWon", ctx, int64(4)).Return(nil, errors.New("no won stage"))
	f.renderer.On("ArchiveQuote", q, "Acme").Return("", errors.New("disk full"))
	f.notifier.On("Notify", ctx, mock.Anything).Return(nil)

	assert.NoError(t, f.svc.ApplySignatureEvent(ctx, q, models.QuoteSigned))
	assert.Equal(t, models.QuoteSigned, q.Status)
}

func TestQuoteTransition_RejectsSent(t *testing.T) {
	f := newQuoteFixture()
	ctx := context.Background()
	f.repo.On("GetByID", ctx, int64(1)).Return(&models.Quote{ID: 1, Status: models.QuoteDraft}, nil)

	_, err := f.svc.Transition(ctx, 1, models.QuoteSent)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestQuoteSend_RequiresEnvelope(t *testing.T) {
	f := newQuoteFixture()
	_, err := f.svc.Send(context.Background(), 1, "docusign", " ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
