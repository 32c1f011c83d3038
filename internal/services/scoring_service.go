package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

type ScoreOutcome struct {
	Contact       *models.Contact       `json:"contact"`
	Event         *models.ScoreEvent    `json:"event"`
	PreviousStage models.LifecycleStage `json:"previous_stage"`
	Promoted      bool                  `json:"promoted"`
}

type ScoringService interface {
	CreateModel(ctx context.Context, m *models.ScoringModel) error
	UpdateModel(ctx context.Context, m *models.ScoringModel) error
	DeleteModel(ctx context.Context, id int64) error
	GetModel(ctx context.Context, id int64) (*models.ScoringModel, error)
	ListModels(ctx context.Context) ([]*models.ScoringModel, error)
	ActivateModel(ctx context.Context, id int64) error

	// RecordEvent scores one contact interaction with the active model.
	RecordEvent(ctx context.Context, contactID int64, eventType string) (*ScoreOutcome, error)
	Events(ctx context.Context, contactID int64, limit int) ([]models.ScoreEvent, error)
}

type scoringService struct {
	repo     repositories.ScoringRepository
	contacts repositories.ContactRepository
	notifier Notifier
	log      *zap.Logger
}

func NewScoringService(repo repositories.ScoringRepository, contacts repositories.ContactRepository, notifier Notifier, log *zap.Logger) ScoringService {
	return &scoringService{repo: repo, contacts: contacts, notifier: notifier, log: log}
}

func validateScoringModel(m *models.ScoringModel) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: model name is required", models.ErrInvalidInput)
	}
	events := make(map[string]bool, len(m.Rules))
	for i := range m.Rules {
		r := &m.Rules[i]
		r.EventType = strings.ToLower(strings.TrimSpace(r.EventType))
		if r.EventType == "" {
			return fmt.Errorf("%w: rule %d has no event type", models.ErrInvalidInput, i)
		}
		if events[r.EventType] {
			return fmt.Errorf("%w: duplicate rule for %q", models.ErrInvalidInput, r.EventType)
		}
		events[r.EventType] = true
	}
	mins := make(map[int]bool, len(m.Thresholds))
	for _, t := range m.Thresholds {
		if t.MinScore < 0 {
			return fmt.Errorf("%w: threshold min_score must not be negative", models.ErrInvalidInput)
		}
		if !t.Stage.Valid() {
			return fmt.Errorf("%w: unknown stage %q", models.ErrInvalidInput, t.Stage)
		}
		if mins[t.MinScore] {
			return fmt.Errorf("%w: duplicate threshold %d", models.ErrInvalidInput, t.MinScore)
		}
		mins[t.MinScore] = true
	}
	return nil
}

// pinnedStages are set by sales work, never by scoring.
func pinnedStage(s models.LifecycleStage) bool {
	return s == models.StageOpportunity || s == models.StageCustomer
}

// applyScore returns the points for eventType, the new score (never below
// zero) and the resulting stage. A nil model scores nothing.
func applyScore(m *models.ScoringModel, c *models.Contact, eventType string) (points, score int, stage models.LifecycleStage) {
	stage = c.LifecycleStage
	if m != nil {
		for _, r := range m.Rules {
			if r.EventType == eventType {
				points = r.Points
				break
			}
		}
	}
	score = c.Score + points
	if score < 0 {
		score = 0
	}
	if m == nil || pinnedStage(c.LifecycleStage) {
		return points, score, stage
	}
	best := -1
	for _, t := range m.Thresholds {
		if t.MinScore <= score && t.MinScore > best {
			best = t.MinScore
			stage = t.Stage
		}
	}
	return points, score, stage
}

func (s *scoringService) CreateModel(ctx context.Context, m *models.ScoringModel) error {
	if err := validateScoringModel(m); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *scoringService) UpdateModel(ctx context.Context, m *models.ScoringModel) error {
	if err := validateScoringModel(m); err != nil {
		return err
	}
	return s.repo.Update(ctx, m)
}

func (s *scoringService) DeleteModel(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *scoringService) GetModel(ctx context.Context, id int64) (*models.ScoringModel, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *scoringService) ListModels(ctx context.Context) ([]*models.ScoringModel, error) {
	return s.repo.List(ctx)
}

func (s *scoringService) ActivateModel(ctx context.Context, id int64) error {
	return s.repo.Activate(ctx, id)
}

func (s *scoringService) RecordEvent(ctx context.Context, contactID int64, eventType string) (*ScoreOutcome, error) {
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	if eventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", models.ErrInvalidInput)
	}
	contact, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	model, err := s.repo.GetActive(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	points, score, stage := applyScore(model, contact, eventType)
	prev := contact.LifecycleStage
	contact.Score = score
	contact.LifecycleStage = stage
	ev := &models.ScoreEvent{
		ContactID:  contact.ID,
		EventType:  eventType,
		Points:     points,
		ScoreAfter: score,
	}
	if err := s.contacts.ApplyScore(ctx, contact, ev); err != nil {
		return nil, err
	}

	out := &ScoreOutcome{
		Contact:       contact,
		Event:         ev,
		PreviousStage: prev,
		Promoted:      stage.Rank() > prev.Rank(),
	}
	if stage != prev {
		s.log.Info("[scoring][reclassify] stage changed",
			zap.Int64("contact_id", contact.ID),
			zap.String("from", string(prev)), zap.String("to", string(stage)), zap.Int("score", score))
	}
	if out.Promoted && s.notifier != nil {
		err := s.notifier.Notify(ctx, &models.Notification{
			UserID:     contact.OwnerID,
			Kind:       models.NotifyLeadPromoted,
			Title:      fmt.Sprintf("%s is now %s", displayName(contact), strings.ToUpper(string(stage))),
			Body:       fmt.Sprintf("Score %d after %q", score, eventType),
			EntityType: "contact",
			EntityID:   contact.ID,
		})
		if err != nil {
			s.log.Warn("[scoring][notify] failed", zap.Int64("contact_id", contact.ID), zap.Error(err))
		}
	}
	return out, nil
}

func displayName(c *models.Contact) string {
	if n := c.FullName(); n != "" {
		return n
	}
	return c.Email
}

func (s *scoringService) Events(ctx context.Context, contactID int64, limit int) ([]models.ScoreEvent, error) {
	if _, err := s.contacts.GetByID(ctx, contactID); err != nil {
		return nil, err
	}
	return s.contacts.ListScoreEvents(ctx, contactID, limit)
}
