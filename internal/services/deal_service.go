package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

const maxMoveAttempts = 3

type DealService interface {
	Create(ctx context.Context, d *models.Deal) error
	Update(ctx context.Context, d *models.Deal) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Deal, error)
	List(ctx context.Context, f models.DealFilter) ([]*models.Deal, error)

	// Move puts the deal at position in the target stage and renumbers both
	// stages. The stage must belong to the deal's pipeline.
	Move(ctx context.Context, dealID, toStageID int64, position int) (*models.Deal, error)
	// MoveToFirstWon closes the deal into its pipeline's first won stage.
	MoveToFirstWon(ctx context.Context, dealID int64) (*models.Deal, error)
	Board(ctx context.Context, pipelineID int64, ownerID *int64) (*models.Board, error)
}

type dealService struct {
	repo      repositories.DealRepository
	pipelines repositories.PipelineRepository
	now       func() time.Time
	log       *zap.Logger
}

func NewDealService(repo repositories.DealRepository, pipelines repositories.PipelineRepository, log *zap.Logger) DealService {
	return &dealService{repo: repo, pipelines: pipelines, now: time.Now, log: log}
}

func validateDeal(d *models.Deal) error {
	d.Title = strings.TrimSpace(d.Title)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Title == "" {
		return fmt.Errorf("%w: deal title is required", models.ErrInvalidInput)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", models.ErrInvalidInput)
	}
	if len(d.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", models.ErrInvalidInput)
	}
	return nil
}

// Create places a new deal at the end of its stage. Without a pipeline the
// default one is used; without a stage, the pipeline's first stage.
func (s *dealService) Create(ctx context.Context, d *models.Deal) error {
	if err := validateDeal(d); err != nil {
		return err
	}
	var (
		p   *models.Pipeline
		err error
	)
	switch {
	case d.StageID != 0:
		p, err = s.pipelines.GetByStageID(ctx, d.StageID)
	case d.PipelineID != 0:
		p, err = s.pipelines.GetByID(ctx, d.PipelineID)
	default:
		p, err = s.pipelines.GetDefault(ctx)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: pipeline or stage does not exist", models.ErrInvalidInput)
		}
		return err
	}
	if d.PipelineID != 0 && d.PipelineID != p.ID {
		return fmt.Errorf("%w: stage %d does not belong to pipeline %d", models.ErrInvalidInput, d.StageID, d.PipelineID)
	}
	d.PipelineID = p.ID

	var st *models.Stage
	if d.StageID != 0 {
		st, _ = p.Stage(d.StageID)
	} else if len(p.Stages) > 0 {
		st = &p.Stages[0]
	}
	if st == nil {
		return fmt.Errorf("%w: pipeline %d has no stages", models.ErrInvalidInput, p.ID)
	}
	d.StageID = st.ID
	d.Probability = st.Probability
	d.Status = models.StatusForStage(st.Kind)
	d.ClosedAt = nil
	if d.Status != models.DealOpen {
		now := s.now()
		d.ClosedAt = &now
	}
	return s.repo.Create(ctx, d)
}

func (s *dealService) Update(ctx context.Context, d *models.Deal) error {
	if err := validateDeal(d); err != nil {
		return err
	}
	return s.repo.Update(ctx, d)
}

func (s *dealService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *dealService) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *dealService) List(ctx context.Context, f models.DealFilter) ([]*models.Deal, error) {
	return s.repo.FilterDeals(ctx, f)
}

// planMove computes the new stage orders and status fields for a move.
// target and source are the current orders of the two stages; for a move
// inside one stage source is ignored.
func planMove(deal *models.Deal, to *models.Stage, target, source []int64, position int, now time.Time) *models.DealMove {
	order := make([]int64, 0, len(target)+1)
	for _, id := range target {
		if id != deal.ID {
			order = append(order, id)
		}
	}
	if position < 0 {
		position = 0
	}
	if position > len(order) {
		position = len(order)
	}
	order = append(order, 0)
	copy(order[position+1:], order[position:])
	order[position] = deal.ID

	mv := &models.DealMove{
		DealID:      deal.ID,
		ToStageID:   to.ID,
		Probability: to.Probability,
		Status:      models.StatusForStage(to.Kind),
		TargetOrder: order,
	}
	if deal.StageID != to.ID {
		mv.SourceOrder = make([]int64, 0, len(source))
		for _, id := range source {
			if id != deal.ID {
				mv.SourceOrder = append(mv.SourceOrder, id)
			}
		}
	}
	switch {
	case mv.Status == models.DealOpen:
		mv.ClosedAt = nil
	case deal.Status == mv.Status && deal.ClosedAt != nil:
		mv.ClosedAt = deal.ClosedAt
	default:
		t := now
		mv.ClosedAt = &t
	}
	return mv
}

func (s *dealService) Move(ctx context.Context, dealID, toStageID int64, position int) (*models.Deal, error) {
	var lastErr error
	for attempt := 1; attempt <= maxMoveAttempts; attempt++ {
		deal, err := s.repo.GetByID(ctx, dealID)
		if err != nil {
			return nil, err
		}
		pipeline, err := s.pipelines.GetByID(ctx, deal.PipelineID)
		if err != nil {
			return nil, err
		}
		to, ok := pipeline.Stage(toStageID)
		if !ok {
			return nil, fmt.Errorf("%w: stage %d does not belong to pipeline %d", models.ErrInvalidInput, toStageID, pipeline.ID)
		}

		target, err := s.repo.StageOrder(ctx, to.ID)
		if err != nil {
			return nil, err
		}
		var source []int64
		if deal.StageID != to.ID {
			if source, err = s.repo.StageOrder(ctx, deal.StageID); err != nil {
				return nil, err
			}
		}

		mv := planMove(deal, to, target, source, position, s.now())
		err = s.repo.ApplyMove(ctx, mv)
		if err == nil {
			s.log.Info("[deals][move] moved",
				zap.Int64("deal_id", dealID),
				zap.Int64("from_stage", deal.StageID),
				zap.Int64("to_stage", to.ID),
				zap.Int("position", indexOf(mv.TargetOrder, dealID)))
			return s.repo.GetByID(ctx, dealID)
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.log.Debug("[deals][move] stage changed concurrently, retrying",
			zap.Int64("deal_id", dealID), zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func (s *dealService) MoveToFirstWon(ctx context.Context, dealID int64) (*models.Deal, error) {
	deal, err := s.repo.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	pipeline, err := s.pipelines.GetByID(ctx, deal.PipelineID)
	if err != nil {
		return nil, err
	}
	won, ok := pipeline.FirstStageOfKind(models.StageKindWon)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %d has no won stage", models.ErrConflict, pipeline.ID)
	}
	if deal.StageID == won.ID {
		return deal, nil
	}
	return s.Move(ctx, dealID, won.ID, 0)
}

func (s *dealService) Board(ctx context.Context, pipelineID int64, ownerID *int64) (*models.Board, error) {
	pipeline, err := s.pipelines.GetByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	deals, err := s.repo.ListByPipeline(ctx, pipelineID, ownerID)
	if err != nil {
		return nil, err
	}
	return buildBoard(pipeline, deals), nil
}

// buildBoard groups deals (already in board order) under their stages.
func buildBoard(p *models.Pipeline, deals []*models.Deal) *models.Board {
	board := &models.Board{Pipeline: *p, Columns: make([]models.BoardColumn, len(p.Stages))}
	index := make(map[int64]int, len(p.Stages))
	for i, st := range p.Stages {
		index[st.ID] = i
		board.Columns[i] = models.BoardColumn{
			Stage:    st,
			Deals:    []models.Deal{},
			Total:    decimal.Zero,
			Weighted: decimal.Zero,
		}
	}
	for _, d := range deals {
		i, ok := index[d.StageID]
		if !ok {
			continue
		}
		col := &board.Columns[i]
		col.Deals = append(col.Deals, *d)
		col.Count++
		col.Total = col.Total.Add(d.Amount)
		col.Weighted = col.Weighted.Add(d.Weighted())
	}
	return board
}
