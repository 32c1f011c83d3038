package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crmhub/internal/cache"
	"crmhub/internal/esign"
	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

// deliveries are remembered long enough to cover vendor retry windows
const webhookDedupTTL = 72 * time.Hour

// SignatureWebhookService applies e-signature callbacks to quotes.
type SignatureWebhookService interface {
	// Handle verifies and applies one delivery and returns the body the
	// vendor expects. Unknown providers yield ErrNotFound and bad
	// signatures esign.ErrBadSignature.
	Handle(ctx context.Context, provider string, d esign.Delivery) (string, error)
}

type signatureWebhookService struct {
	registry *esign.Registry
	quotes   repositories.QuoteRepository
	quoteSvc QuoteService
	idem     cache.IdempotencyStore
	log      *zap.Logger
}

func NewSignatureWebhookService(
	registry *esign.Registry,
	quotes repositories.QuoteRepository,
	quoteSvc QuoteService,
	idem cache.IdempotencyStore,
	log *zap.Logger,
) SignatureWebhookService {
	return &signatureWebhookService{registry: registry, quotes: quotes, quoteSvc: quoteSvc, idem: idem, log: log}
}

func (s *signatureWebhookService) Handle(ctx context.Context, provider string, d esign.Delivery) (string, error) {
	p, ok := s.registry.Lookup(provider)
	if !ok {
		return "", fmt.Errorf("%w: signature provider %q", models.ErrNotFound, provider)
	}
	log := s.log.With(zap.String("provider", provider), zap.String("delivery_id", uuid.NewString()))

	events, err := p.Parse(d)
	if err != nil {
		log.Warn("[esign][parse] rejected", zap.Error(err))
		return "", err
	}

	ack := "ok"
	if a, ok := p.(esign.Acknowledger); ok {
		ack = a.Ack()
	}
	for _, ev := range events {
		if err := s.apply(ctx, log, ev); err != nil {
			return "", err
		}
	}
	return ack, nil
}

func (s *signatureWebhookService) apply(ctx context.Context, log *zap.Logger, ev esign.Event) error {
	log = log.With(zap.String("envelope_id", ev.EnvelopeID), zap.String("event", ev.Name))
	if ev.Status == "" {
		log.Info("[esign][event] ignored")
		return nil
	}

	key := ev.Key()
	fresh, err := s.idem.MarkProcessed(ctx, key, webhookDedupTTL)
	if err != nil {
		return fmt.Errorf("webhook dedup: %w", err)
	}
	if !fresh {
		log.Info("[esign][event] duplicate delivery")
		return nil
	}

	q, err := s.quotes.GetByEnvelope(ctx, ev.Provider, ev.EnvelopeID)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("[esign][event] unknown envelope")
		return nil
	}
	if err != nil {
		s.forget(ctx, log, key)
		return err
	}

	tctx := tenant.WithID(ctx, q.TenantID)
	err = s.quoteSvc.ApplySignatureEvent(tctx, q, ev.Status)
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		log.Warn("[esign][event] transition not allowed",
			zap.Int64("quote_id", q.ID), zap.String("status", string(q.Status)), zap.String("to", string(ev.Status)))
		return nil
	case err != nil:
		s.forget(ctx, log, key)
		return err
	}
	log.Info("[esign][event] applied", zap.Int64("quote_id", q.ID), zap.String("to", string(ev.Status)))
	return nil
}

// forget lets the vendor's retry be processed after a failure on our side.
func (s *signatureWebhookService) forget(ctx context.Context, log *zap.Logger, key string) {
	if err := s.idem.Forget(ctx, key); err != nil {
		log.Warn("[esign][dedup] forget failed", zap.String("key", key), zap.Error(err))
	}
}
