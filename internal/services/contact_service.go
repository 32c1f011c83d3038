package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

// ConvertInput describes the deal created when a contact is converted.
type ConvertInput struct {
	Title             string          `json:"title"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ExpectedCloseDate *time.Time      `json:"expected_close_date,omitempty"`
}

type ContactService interface {
	Create(ctx context.Context, c *models.Contact) error
	Update(ctx context.Context, c *models.Contact) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	List(ctx context.Context, f models.ContactFilter) ([]*models.Contact, error)
	// Convert opens a deal for the contact in the default pipeline and
	// promotes the contact to opportunity.
	Convert(ctx context.Context, contactID, ownerID int64, in ConvertInput) (*models.Deal, error)
}

type contactService struct {
	repo            repositories.ContactRepository
	companies       repositories.CompanyRepository
	deals           repositories.DealRepository
	pipelines       repositories.PipelineRepository
	defaultCurrency string
	log             *zap.Logger
}

func NewContactService(
	repo repositories.ContactRepository,
	companies repositories.CompanyRepository,
	deals repositories.DealRepository,
	pipelines repositories.PipelineRepository,
	defaultCurrency string,
	log *zap.Logger,
) ContactService {
	return &contactService{
		repo:            repo,
		companies:       companies,
		deals:           deals,
		pipelines:       pipelines,
		defaultCurrency: defaultCurrency,
		log:             log,
	}
}

func (s *contactService) validate(ctx context.Context, c *models.Contact) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.FirstName == "" && c.LastName == "" && c.Email == "" {
		return fmt.Errorf("%w: a name or email is required", models.ErrInvalidInput)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", models.ErrInvalidInput, c.Email)
	}
	if c.LifecycleStage == "" {
		c.LifecycleStage = models.StageLead
	}
	if !c.LifecycleStage.Valid() {
		return fmt.Errorf("%w: unknown lifecycle stage %q", models.ErrInvalidInput, c.LifecycleStage)
	}
	if c.CompanyID != nil {
		if _, err := s.companies.GetByID(ctx, *c.CompanyID); err != nil {
			return fmt.Errorf("%w: company %d: %v", models.ErrInvalidInput, *c.CompanyID, err)
		}
	}
	return nil
}

func (s *contactService) Create(ctx context.Context, c *models.Contact) error {
	if err := s.validate(ctx, c); err != nil {
		return err
	}
	c.Score = 0
	return s.repo.Create(ctx, c)
}

// Update writes the editable attributes; score only changes through events.
func (s *contactService) Update(ctx context.Context, c *models.Contact) error {
	if err := s.validate(ctx, c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

func (s *contactService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *contactService) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *contactService) List(ctx context.Context, f models.ContactFilter) ([]*models.Contact, error) {
	return s.repo.List(ctx, f)
}

func (s *contactService) Convert(ctx context.Context, contactID, ownerID int64, in ConvertInput) (*models.Deal, error) {
	contact, err := s.repo.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", models.ErrInvalidInput)
	}

	// one open deal per contact
	open := models.DealOpen
	existing, err := s.deals.FilterDeals(ctx, models.DealFilter{ContactID: &contact.ID, Status: &open, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: contact already has open deal %d", models.ErrConflict, existing[0].ID)
	}

	pipeline, err := s.pipelines.GetDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("default pipeline: %w", err)
	}
	stage, ok := pipeline.FirstStageOfKind(models.StageKindOpen)
	if !ok {
		return nil, fmt.Errorf("%w: default pipeline has no open stage", models.ErrConflict)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = contact.FullName()
		if title == "" {
			title = contact.Email
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if ownerID == 0 {
		ownerID = contact.OwnerID
	}

	deal := &models.Deal{
		PipelineID:        pipeline.ID,
		StageID:           stage.ID,
		Title:             title,
		ContactID:         &contact.ID,
		CompanyID:         contact.CompanyID,
		OwnerID:           ownerID,
		Amount:            in.Amount,
		Currency:          currency,
		Probability:       stage.Probability,
		Status:            models.DealOpen,
		ExpectedCloseDate: in.ExpectedCloseDate,
	}
	if err := s.deals.Create(ctx, deal); err != nil {
		return nil, err
	}

	if contact.LifecycleStage.Rank() < models.StageOpportunity.Rank() {
		if err := s.repo.UpdateStage(ctx, contact.ID, models.StageOpportunity); err != nil {
			if derr := s.deals.Delete(ctx, deal.ID); derr != nil {
				s.log.Error("[contacts][convert] rollback deal failed", zap.Int64("deal_id", deal.ID), zap.Error(derr))
			}
			return nil, err
		}
	}
	s.log.Info("[contacts][convert] deal opened",
		zap.Int64("contact_id", contact.ID), zap.Int64("deal_id", deal.ID), zap.Int64("stage_id", stage.ID))
	return deal, nil
}
