package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

const dueCampaignBatch = 20

type CampaignService interface {
	Create(ctx context.Context, c *models.Campaign) error
	Update(ctx context.Context, c *models.Campaign) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	List(ctx context.Context, ownerID *int64) ([]*models.Campaign, error)
	// Send renders the template for every audience contact and mails it.
	Send(ctx context.Context, id int64) (*models.Campaign, error)
	Cancel(ctx context.Context, id int64) error
	// RunDue sends scheduled campaigns whose time has come, across tenants.
	RunDue(ctx context.Context) error
}

type campaignService struct {
	repo        repositories.CampaignRepository
	templates   repositories.EmailTemplateRepository
	contacts    repositories.ContactRepository
	companies   repositories.CompanyRepository
	email       EmailService
	notifier    Notifier
	sender      string
	concurrency int
	log         *zap.Logger
	now         func() time.Time
}

func NewCampaignService(
	repo repositories.CampaignRepository,
	templates repositories.EmailTemplateRepository,
	contacts repositories.ContactRepository,
	companies repositories.CompanyRepository,
	email EmailService,
	notifier Notifier,
	sender string,
	concurrency int,
	log *zap.Logger,
) CampaignService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &campaignService{
		repo:        repo,
		templates:   templates,
		contacts:    contacts,
		companies:   companies,
		email:       email,
		notifier:    notifier,
		sender:      sender,
		concurrency: concurrency,
		log:         log,
		now:         time.Now,
	}
}

func (s *campaignService) prepare(ctx context.Context, c *models.Campaign) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", models.ErrInvalidInput)
	}
	if c.AudienceStage != nil && !c.AudienceStage.Valid() {
		return fmt.Errorf("%w: unknown audience stage %q", models.ErrInvalidInput, *c.AudienceStage)
	}
	if _, err := s.templates.GetByID(ctx, c.TemplateID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: template %d does not exist", models.ErrInvalidInput, c.TemplateID)
		}
		return err
	}
	c.Status = models.CampaignDraft
	if c.ScheduledAt != nil {
		if !c.ScheduledAt.After(s.now()) {
			return fmt.Errorf("%w: scheduled_at must be in the future", models.ErrInvalidInput)
		}
		c.Status = models.CampaignScheduled
	}
	return nil
}

func (s *campaignService) Create(ctx context.Context, c *models.Campaign) error {
	if err := s.prepare(ctx, c); err != nil {
		return err
	}
	return s.repo.Create(ctx, c)
}

func (s *campaignService) Update(ctx context.Context, c *models.Campaign) error {
	current, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.Status != models.CampaignDraft && current.Status != models.CampaignScheduled {
		return fmt.Errorf("%w: campaign is %s", models.ErrConflict, current.Status)
	}
	c.OwnerID = current.OwnerID
	if err := s.prepare(ctx, c); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: campaign changed state", models.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *campaignService) Delete(ctx context.Context, id int64) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignSending {
		return fmt.Errorf("%w: campaign is being sent", models.ErrConflict)
	}
	return s.repo.Delete(ctx, id)
}

func (s *campaignService) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *campaignService) List(ctx context.Context, ownerID *int64) ([]*models.Campaign, error) {
	return s.repo.List(ctx, ownerID)
}

func (s *campaignService) Cancel(ctx context.Context, id int64) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(string(c.Status), string(models.CampaignCancelled), CampaignTransitions) {
		return fmt.Errorf("%w: cannot cancel a %s campaign", models.ErrInvalidTransition, c.Status)
	}
	return s.repo.TransitionStatus(ctx, id, c.Status, models.CampaignCancelled)
}

func (s *campaignService) Send(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, c)
}

func (s *campaignService) send(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	if !canTransition(string(c.Status), string(models.CampaignSending), CampaignTransitions) {
		return nil, fmt.Errorf("%w: cannot send a %s campaign", models.ErrInvalidTransition, c.Status)
	}
	if err := s.repo.TransitionStatus(ctx, c.ID, c.Status, models.CampaignSending); err != nil {
		return nil, err
	}
	previous := c.Status
	c.Status = models.CampaignSending

	// The batch outlives a dropped client connection.
	ctx = context.WithoutCancel(ctx)

	revert := func(cause error) error {
		if err := s.repo.TransitionStatus(ctx, c.ID, models.CampaignSending, previous); err != nil {
			s.log.Error("[campaigns][send] revert status failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
		}
		c.Status = previous
		return cause
	}

	tpl, err := s.templates.GetByID(ctx, c.TemplateID)
	if err != nil {
		return nil, revert(fmt.Errorf("load template: %w", err))
	}
	compiled, err := compileTemplate(tpl)
	if err != nil {
		return nil, revert(err)
	}
	audience, err := s.contacts.ListAudience(ctx, models.AudienceFilter{Stage: c.AudienceStage})
	if err != nil {
		return nil, revert(fmt.Errorf("load audience: %w", err))
	}

	companyNames := s.companyNames(ctx, audience)

	var sent, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, contact := range audience {
		g.Go(func() error {
			data := TemplateData{
				FirstName: contact.FirstName,
				LastName:  contact.LastName,
				Email:     contact.Email,
				Sender:    s.sender,
			}
			if contact.CompanyID != nil {
				data.Company = companyNames[*contact.CompanyID]
			}
			msg, err := compiled.render(data)
			if err == nil {
				err = s.email.Send(contact.Email, msg.Subject, msg.HTML)
			}
			if err != nil {
				failed.Add(1)
				s.log.Warn("[campaigns][send] delivery failed",
					zap.Int64("campaign_id", c.ID), zap.Int64("contact_id", contact.ID), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("[campaigns][send] worker failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
	}

	sentAt := s.now()
	c.Recipients = len(audience)
	c.SentCount = int(sent.Load())
	c.FailedCount = int(failed.Load())
	if err := s.recordResult(ctx, c, sentAt); err != nil {
		return nil, err
	}
	c.Status = models.CampaignSent
	c.SentAt = &sentAt

	s.log.Info("[campaigns][send] finished",
		zap.Int64("campaign_id", c.ID),
		zap.Int("recipients", c.Recipients),
		zap.Int("sent", c.SentCount),
		zap.Int("failed", c.FailedCount))

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, &models.Notification{
			UserID:     c.OwnerID,
			Kind:       models.NotifyCampaignResult,
			Title:      "Campaign sent: " + c.Name,
			Body:       fmt.Sprintf("%d of %d emails delivered, %d failed", c.SentCount, c.Recipients, c.FailedCount),
			EntityType: "campaign",
			EntityID:   c.ID,
		})
		if err != nil {
			s.log.Warn("[campaigns][send] notify owner failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
		}
	}
	return c, nil
}

const (
	recordAttempts = 3
	recordTimeout  = 5 * time.Second
)

// recordResult stores the delivery counts once the emails are out. If the
// counts cannot be written the campaign is still moved out of sending.
func (s *campaignService) recordResult(ctx context.Context, c *models.Campaign, sentAt time.Time) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, recordTimeout)
		err = s.repo.RecordResult(actx, c.ID, c.Recipients, c.SentCount, c.FailedCount, sentAt)
		cancel()
		if err == nil {
			return nil
		}
		s.log.Warn("[campaigns][send] record result failed",
			zap.Int64("campaign_id", c.ID), zap.Int("attempt", attempt), zap.Error(err))
	}

	actx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if terr := s.repo.TransitionStatus(actx, c.ID, models.CampaignSending, models.CampaignSent); terr != nil {
		s.log.Error("[campaigns][send] campaign left in sending",
			zap.Int64("campaign_id", c.ID), zap.Error(terr))
	} else {
		c.Status = models.CampaignSent
	}
	s.log.Error("[campaigns][send] delivery counts lost",
		zap.Int64("campaign_id", c.ID), zap.Int("sent", c.SentCount), zap.Int("failed", c.FailedCount))
	return fmt.Errorf("record campaign result: %w", err)
}

// companyNames resolves each distinct company once. Lookups that fail leave
// the name empty.
func (s *campaignService) companyNames(ctx context.Context, audience []*models.Contact) map[int64]string {
	names := make(map[int64]string)
	for _, contact := range audience {
		if contact.CompanyID == nil {
			continue
		}
		id := *contact.CompanyID
		if _, ok := names[id]; ok {
			continue
		}
		co, err := s.companies.GetByID(ctx, id)
		if err != nil {
			names[id] = ""
			continue
		}
		names[id] = co.Name
	}
	return names
}

func (s *campaignService) RunDue(ctx context.Context) error {
	due, err := s.repo.ListDueScheduled(ctx, s.now(), dueCampaignBatch)
	if err != nil {
		return err
	}
	for _, c := range due {
		tctx := tenant.WithID(ctx, c.TenantID)
		if _, err := s.send(tctx, c); err != nil {
			if errors.Is(err, models.ErrConflict) {
				continue
			}
			s.log.Error("[campaigns][scheduler] send failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
		}
	}
	return nil
}
