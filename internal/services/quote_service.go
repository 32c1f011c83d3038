package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/pdf"
	"crmhub/internal/repositories"
)

var hundred = decimal.NewFromInt(100)

type QuoteService interface {
	Create(ctx context.Context, q *models.Quote) error
	// Update replaces header and items; only drafts are editable.
	Update(ctx context.Context, q *models.Quote) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Quote, error)
	List(ctx context.Context, f models.QuoteFilter) ([]*models.Quote, error)

	// Send records the signature envelope and marks the draft as sent.
	Send(ctx context.Context, id int64, provider, envelopeID string) (*models.Quote, error)
	// Transition applies a manual status change, e.g. expiring a quote.
	Transition(ctx context.Context, id int64, to models.QuoteStatus) (*models.Quote, error)
	RenderPDF(ctx context.Context, id int64, w io.Writer) (*models.Quote, error)
	// ApplySignatureEvent applies a status reported by a signing provider.
	ApplySignatureEvent(ctx context.Context, q *models.Quote, to models.QuoteStatus) error
}

type quoteService struct {
	repo     repositories.QuoteRepository
	deals    DealService
	notifier Notifier
	renderer pdf.Renderer
	seller   string
	now      func() time.Time
	log      *zap.Logger
}

func NewQuoteService(
	repo repositories.QuoteRepository,
	deals DealService,
	notifier Notifier,
	renderer pdf.Renderer,
	seller string,
	log *zap.Logger,
) QuoteService {
	return &quoteService{
		repo:     repo,
		deals:    deals,
		notifier: notifier,
		renderer: renderer,
		seller:   seller,
		now:      time.Now,
		log:      log,
	}
}

// computeTotals validates the items and fills line, discount, tax and
// grand totals, all rounded to cents.
func computeTotals(q *models.Quote) error {
	if len(q.Items) == 0 {
		return fmt.Errorf("%w: a quote needs at least one item", models.ErrInvalidInput)
	}
	if q.DiscountPercent.IsNegative() || q.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: discount must be within 0..100", models.ErrInvalidInput)
	}
	if q.TaxPercent.IsNegative() || q.TaxPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: tax must be within 0..100", models.ErrInvalidInput)
	}

	subtotal := decimal.Zero
	for i := range q.Items {
		it := &q.Items[i]
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return fmt.Errorf("%w: item %d has no name", models.ErrInvalidInput, i)
		}
		if !it.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %q quantity must be positive", models.ErrInvalidInput, it.Name)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %q price must not be negative", models.ErrInvalidInput, it.Name)
		}
		it.Position = i
		it.LineTotal = it.Quantity.Mul(it.UnitPrice).Round(2)
		subtotal = subtotal.Add(it.LineTotal)
	}

	q.Subtotal = subtotal
	q.DiscountTotal = subtotal.Mul(q.DiscountPercent).Div(hundred).Round(2)
	q.TaxTotal = subtotal.Sub(q.DiscountTotal).Mul(q.TaxPercent).Div(hundred).Round(2)
	q.Total = subtotal.Sub(q.DiscountTotal).Add(q.TaxTotal)
	return nil
}

func (s *quoteService) Create(ctx context.Context, q *models.Quote) error {
	deal, err := s.deals.GetByID(ctx, q.DealID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: deal %d does not exist", models.ErrInvalidInput, q.DealID)
		}
		return err
	}
	q.Title = strings.TrimSpace(q.Title)
	if q.Title == "" {
		q.Title = deal.Title
	}
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	if q.Currency == "" {
		q.Currency = deal.Currency
	}
	if q.OwnerID == 0 {
		q.OwnerID = deal.OwnerID
	}
	q.Status = models.QuoteDraft
	if err := computeTotals(q); err != nil {
		return err
	}
	return s.repo.Create(ctx, q)
}

func (s *quoteService) Update(ctx context.Context, q *models.Quote) error {
	current, err := s.repo.GetByID(ctx, q.ID)
	if err != nil {
		return err
	}
	if current.Status != models.QuoteDraft {
		return fmt.Errorf("%w: only draft quotes can be edited", models.ErrConflict)
	}
	q.DealID = current.DealID
	q.OwnerID = current.OwnerID
	q.Number = current.Number
	q.Status = current.Status
	q.Title = strings.TrimSpace(q.Title)
	if q.Title == "" {
		q.Title = current.Title
	}
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	if q.Currency == "" {
		q.Currency = current.Currency
	}
	if err := computeTotals(q); err != nil {
		return err
	}
	return s.repo.Update(ctx, q)
}

func (s *quoteService) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != models.QuoteDraft {
		return fmt.Errorf("%w: only draft quotes can be deleted", models.ErrConflict)
	}
	return s.repo.Delete(ctx, id)
}

func (s *quoteService) GetByID(ctx context.Context, id int64) (*models.Quote, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *quoteService) List(ctx context.Context, f models.QuoteFilter) ([]*models.Quote, error) {
	return s.repo.List(ctx, f)
}

func (s *quoteService) Send(ctx context.Context, id int64, provider, envelopeID string) (*models.Quote, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	envelopeID = strings.TrimSpace(envelopeID)
	if provider == "" || envelopeID == "" {
		return nil, fmt.Errorf("%w: provider and envelope_id are required", models.ErrInvalidInput)
	}
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(string(q.Status), string(models.QuoteSent), QuoteTransitions) {
		return nil, fmt.Errorf("%w: %s -> sent", models.ErrInvalidTransition, q.Status)
	}
	if err := s.repo.SetEnvelope(ctx, id, provider, envelopeID, s.now()); err != nil {
		return nil, err
	}
	s.log.Info("[quotes][send] quote sent",
		zap.Int64("quote_id", id), zap.String("provider", provider), zap.String("envelope_id", envelopeID))
	return s.repo.GetByID(ctx, id)
}

func (s *quoteService) Transition(ctx context.Context, id int64, to models.QuoteStatus) (*models.Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if to == models.QuoteSent {
		return nil, fmt.Errorf("%w: use send to dispatch a quote", models.ErrInvalidInput)
	}
	if err := s.ApplySignatureEvent(ctx, q, to); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *quoteService) RenderPDF(ctx context.Context, id int64, w io.Writer) (*models.Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return q, s.renderer.RenderQuote(w, q, s.seller)
}

func (s *quoteService) ApplySignatureEvent(ctx context.Context, q *models.Quote, to models.QuoteStatus) error {
	if q.Status == to {
		// a redelivered "signed" still makes sure the deal was closed
		if to == models.QuoteSigned {
			s.closeDeal(ctx, q)
		}
		return nil
	}
	if !canTransition(string(q.Status), string(to), QuoteTransitions) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, q.Status, to)
	}
	at := s.now()
	if err := s.repo.TransitionStatus(ctx, q.ID, q.Status, to, at); err != nil {
		return err
	}
	from := q.Status
	q.Status = to
	if to == models.QuoteSigned {
		q.SignedAt = &at
	}
	s.log.Info("[quotes][status] changed",
		zap.Int64("quote_id", q.ID), zap.String("from", string(from)), zap.String("to", string(to)))

	if to == models.QuoteSigned {
		s.closeDeal(ctx, q)
		if path, err := s.renderer.ArchiveQuote(q, s.seller); err != nil {
			s.log.Warn("[quotes][archive] failed", zap.Int64("quote_id", q.ID), zap.Error(err))
		} else {
			s.log.Info("[quotes][archive] stored", zap.Int64("quote_id", q.ID), zap.String("path", path))
		}
	}

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, &models.Notification{
			UserID:     q.OwnerID,
			Kind:       models.NotifyQuoteStatus,
			Title:      fmt.Sprintf("Quote %s %s", q.Number, to),
			Body:       q.Title,
			EntityType: "quote",
			EntityID:   q.ID,
		})
		if err != nil {
			s.log.Warn("[quotes][notify] failed", zap.Int64("quote_id", q.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *quoteService) closeDeal(ctx context.Context, q *models.Quote) {
	if _, err := s.deals.MoveToFirstWon(ctx, q.DealID); err != nil {
		s.log.Error("[quotes][deal] moving deal to won failed",
			zap.Int64("quote_id", q.ID), zap.Int64("deal_id", q.DealID), zap.Error(err))
	}
}
