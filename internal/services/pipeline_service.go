package services

import (
	"context"
	"fmt"
	"strings"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

type PipelineService interface {
	Create(ctx context.Context, p *models.Pipeline) error
	Update(ctx context.Context, p *models.Pipeline) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Pipeline, error)
	List(ctx context.Context) ([]*models.Pipeline, error)
}

type pipelineService struct {
	repo repositories.PipelineRepository
}

func NewPipelineService(repo repositories.PipelineRepository) PipelineService {
	return &pipelineService{repo: repo}
}

// normalizeStages fills kind and probability defaults and validates ranges.
func normalizeStages(stages []models.Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: a pipeline needs at least one stage", models.ErrInvalidInput)
	}
	for i := range stages {
		st := &stages[i]
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", models.ErrInvalidInput, i)
		}
		switch st.Kind {
		case "":
			st.Kind = models.StageKindOpen
		case models.StageKindOpen, models.StageKindWon, models.StageKindLost:
		default:
			return fmt.Errorf("%w: stage %q has unknown kind %q", models.ErrInvalidInput, st.Name, st.Kind)
		}
		if st.Probability < 0 || st.Probability > 100 {
			return fmt.Errorf("%w: stage %q probability must be within 0..100", models.ErrInvalidInput, st.Name)
		}
		if st.Kind == models.StageKindWon && st.Probability == 0 {
			st.Probability = 100
		}
		if st.Kind == models.StageKindLost {
			st.Probability = 0
		}
		st.Position = i
	}
	return nil
}

func (s *pipelineService) Create(ctx context.Context, p *models.Pipeline) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: pipeline name is required", models.ErrInvalidInput)
	}
	if err := normalizeStages(p.Stages); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// Update renames the pipeline and edits stages in place. The stage set is
// fixed after creation, so every stage must carry an existing id.
func (s *pipelineService) Update(ctx context.Context, p *models.Pipeline) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: pipeline name is required", models.ErrInvalidInput)
	}
	current, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(p.Stages) != len(current.Stages) {
		return fmt.Errorf("%w: stages cannot be added or removed", models.ErrInvalidInput)
	}
	for _, st := range p.Stages {
		if _, ok := current.Stage(st.ID); !ok {
			return fmt.Errorf("%w: stage %d is not part of pipeline %d", models.ErrInvalidInput, st.ID, p.ID)
		}
	}
	if err := normalizeStages(p.Stages); err != nil {
		return err
	}
	if current.IsDefault && !p.IsDefault {
		return fmt.Errorf("%w: mark another pipeline as default instead", models.ErrConflict)
	}
	return s.repo.Update(ctx, p)
}

func (s *pipelineService) Delete(ctx context.Context, id int64) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.IsDefault {
		return fmt.Errorf("%w: the default pipeline cannot be deleted", models.ErrConflict)
	}
	return s.repo.Delete(ctx, id)
}

func (s *pipelineService) GetByID(ctx context.Context, id int64) (*models.Pipeline, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *pipelineService) List(ctx context.Context) ([]*models.Pipeline, error) {
	return s.repo.List(ctx)
}
