package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/models"
)

func TestPlanMove(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)

	open := &models.Stage{ID: 2, Probability: 25, Kind: models.StageKindOpen}
	won := &models.Stage{ID: 3, Probability: 100, Kind: models.StageKindWon}
	won2 := &models.Stage{ID: 4, Probability: 100, Kind: models.StageKindWon}

	tests := []struct {
		name       string
		deal       models.Deal
		to         *models.Stage
		target     []int64
		source     []int64
		position   int
		wantTarget []int64
		wantSource []int64
		wantStatus models.DealStatus
		wantClosed *time.Time
	}{
		{
			name:       "reorder inside a stage",
			deal:       models.Deal{ID: 20, StageID: 2, Status: models.DealOpen},
			to:         open,
			target:     []int64{10, 20, 30},
			position:   0,
			wantTarget: []int64{20, 10, 30},
			wantStatus: models.DealOpen,
		},
		{
			name:       "move down inside a stage",
			deal:       models.Deal{ID: 10, StageID: 2, Status: models.DealOpen},
			to:         open,
			target:     []int64{10, 20, 30},
			position:   2,
			wantTarget: []int64{20, 30, 10},
			wantStatus: models.DealOpen,
		},
		{
			name:       "cross stage insert in the middle",
			deal:       models.Deal{ID: 5, StageID: 1, Status: models.DealOpen},
			to:         open,
			target:     []int64{7, 8},
			source:     []int64{4, 5, 6},
			position:   1,
			wantTarget: []int64{7, 5, 8},
			wantSource: []int64{4, 6},
			wantStatus: models.DealOpen,
		},
		{
			name:       "position past the end is clamped",
			deal:       models.Deal{ID: 5, StageID: 1, Status: models.DealOpen},
			to:         open,
			target:     []int64{7, 8},
			source:     []int64{5},
			position:   99,
			wantTarget: []int64{7, 8, 5},
			wantSource: []int64{},
			wantStatus: models.DealOpen,
		},
		{
			name:       "negative position is clamped",
			deal:       models.Deal{ID: 5, StageID: 1, Status: models.DealOpen},
			to:         open,
			target:     []int64{7},
			source:     []int64{5},
			position:   -3,
			wantTarget: []int64{5, 7},
			wantSource: []int64{},
			wantStatus: models.DealOpen,
		},
		{
			name:       "empty stage",
			deal:       models.Deal{ID: 5, StageID: 1, Status: models.DealOpen},
			to:         open,
			source:     []int64{5, 6},
			position:   3,
			wantTarget: []int64{5},
			wantSource: []int64{6},
			wantStatus: models.DealOpen,
		},
		{
			name:       "won stage closes the deal",
			deal:       models.Deal{ID: 5, StageID: 2, Status: models.DealOpen},
			to:         won,
			source:     []int64{5},
			wantTarget: []int64{5},
			wantSource: []int64{},
			wantStatus: models.DealWon,
			wantClosed: &now,
		},
		{
			name:       "won to won keeps closed_at",
			deal:       models.Deal{ID: 5, StageID: 3, Status: models.DealWon, ClosedAt: &earlier},
			to:         won2,
			source:     []int64{5},
			wantTarget: []int64{5},
			wantSource: []int64{},
			wantStatus: models.DealWon,
			wantClosed: &earlier,
		},
		{
			name:       "reopening clears closed_at",
			deal:       models.Deal{ID: 5, StageID: 3, Status: models.DealWon, ClosedAt: &earlier},
			to:         open,
			target:     []int64{1},
			source:     []int64{5},
			wantTarget: []int64{5, 1},
			wantSource: []int64{},
			wantStatus: models.DealOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mv := planMove(&tt.deal, tt.to, tt.target, tt.source, tt.position, now)

			assert.Equal(t, tt.deal.ID, mv.DealID)
			assert.Equal(t, tt.to.ID, mv.ToStageID)
			assert.Equal(t, tt.to.Probability, mv.Probability)
			assert.Equal(t, tt.wantTarget, mv.TargetOrder)
			assert.Equal(t, tt.wantSource, mv.SourceOrder)
			assert.Equal(t, tt.wantStatus, mv.Status)
			if tt.wantClosed == nil {
				assert.Nil(t, mv.ClosedAt)
			} else {
				require.NotNil(t, mv.ClosedAt)
				assert.True(t, tt.wantClosed.Equal(*mv.ClosedAt))
			}
		})
	}
}

func TestPlanMove_SameStageLeavesSourceNil(t *testing.T) {
	deal := &models.Deal{ID: 1, StageID: 9}
	mv := planMove(deal, &models.Stage{ID: 9, Kind: models.StageKindOpen}, []int64{1, 2}, []int64{1, 2}, 1, time.Now())
	assert.Nil(t, mv.SourceOrder)
	assert.Equal(t, []int64{2, 1}, mv.TargetOrder)
}

func TestBuildBoard(t *testing.T) {
	p := &models.Pipeline{
		ID: 1,
		Stages: []models.Stage{
			{ID: 10, Name: "New", Position: 0, Probability: 10},
			{ID: 11, Name: "Proposal", Position: 1, Probability: 50},
			{ID: 12, Name: "Won", Position: 2, Probability: 100, Kind: models.StageKindWon},
		},
	}
	deals := []*models.Deal{
		{ID: 1, StageID: 10, Amount: decimal.NewFromInt(1000), Probability: 10},
		{ID: 2, StageID: 11, Amount: decimal.NewFromInt(200), Probability: 50},
		{ID: 3, StageID: 11, Amount: decimal.RequireFromString("99.99"), Probability: 50},
		{ID: 4, StageID: 99, Amount: decimal.NewFromInt(5)},
	}

	board := buildBoard(p, deals)
	require.Len(t, board.Columns, 3)

	first := board.Columns[0]
	assert.Equal(t, 1, first.Count)
	assert.True(t, decimal.NewFromInt(1000).Equal(first.Total))
	assert.True(t, decimal.NewFromInt(100).Equal(first.Weighted))

	second := board.Columns[1]
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, int64(2), second.Deals[0].ID)
	assert.Equal(t, int64(3), second.Deals[1].ID)
	assert.True(t, decimal.RequireFromString("299.99").Equal(second.Total))
	// 100 + 49.995 rounded to 50.00
	assert.True(t, decimal.RequireFromString("150").Equal(second.Weighted), second.Weighted.String())

	won := board.Columns[2]
	assert.Equal(t, 0, won.Count)
	assert.NotNil(t, won.Deals)
	assert.True(t, won.Total.IsZero())
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 1, indexOf([]int64{4, 5, 6}, 5))
	assert.Equal(t, -1, indexOf([]int64{4, 5, 6}, 7))
	assert.Equal(t, -1, indexOf(nil, 1))
}

func movePipeline() *models.Pipeline {
	return &models.Pipeline{ID: 1, Stages: []models.Stage{
		{ID: 2, PipelineID: 1, Position: 0, Probability: 25, Kind: models.StageKindOpen},
		{ID: 3, PipelineID: 1, Position: 1, Probability: 100, Kind: models.StageKindWon},
		{ID: 4, PipelineID: 1, Position: 2, Probability: 0, Kind: models.StageKindLost},
	}}
}

func TestDealServiceMove(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	tests := []struct {
		name      string
		toStage   int64
		applyErrs []error
		wantErr   error
		wantCalls int
	}{
		{name: "stage from another pipeline", toStage: 99, wantErr: models.ErrInvalidInput},
		{name: "first attempt succeeds", toStage: 3, applyErrs: []error{nil}, wantCalls: 1},
		{name: "retries after a conflict", toStage: 3, applyErrs: []error{models.ErrConflict, nil}, wantCalls: 2},
		{
			name:      "gives up after the last attempt",
			toStage:   3,
			applyErrs: []error{models.ErrConflict, models.ErrConflict, models.ErrConflict},
			wantErr:   models.ErrConflict,
			wantCalls: maxMoveAttempts,
		},
		{name: "other errors are not retried", toStage: 3, applyErrs: []error{boom}, wantErr: boom, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deals := new(MockDealRepository)
			pipelines := new(MockPipelineRepository)
			svc := NewDealService(deals, pipelines, zap.NewNop())

			deal := &models.Deal{ID: 20, PipelineID: 1, StageID: 2, Status: models.DealOpen}
			deals.On("GetByID", ctx, int64(20)).Return(deal, nil)
			pipelines.On("GetByID", ctx, int64(1)).Return(movePipeline(), nil)
			deals.On("StageOrder", ctx, int64(3)).Return([]int64{30}, nil)
			deals.On("StageOrder", ctx, int64(2)).Return([]int64{10, 20}, nil)
			for _, err := range tt.applyErrs {
				deals.On("ApplyMove", ctx, mock.MatchedBy(func(mv *models.DealMove) bool {
					return mv.DealID == 20 && mv.ToStageID == 3 && mv.Status == models.DealWon
				})).Return(err).Once()
			}

			got, err := svc.Move(ctx, 20, tt.toStage, 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(20), got.ID)
			}
			deals.AssertNumberOfCalls(t, "ApplyMove", tt.wantCalls)
		})
	}
}

func TestDealServiceMoveToFirstWon(t *testing.T) {
	ctx := context.Background()

	t.Run("already won", func(t *testing.T) {
		deals := new(MockDealRepository)
		pipelines := new(MockPipelineRepository)
		deal := &models.Deal{ID: 20, PipelineID: 1, StageID: 3, Status: models.DealWon}
		deals.On("GetByID", ctx, int64(20)).Return(deal, nil)
		pipelines.On("GetByID", ctx, int64(1)).Return(movePipeline(), nil)

		got, err := NewDealService(deals, pipelines, zap.NewNop()).MoveToFirstWon(ctx, 20)
		require.NoError(t, err)
		assert.Same(t, deal, got)
		deals.AssertNotCalled(t, "ApplyMove", mock.Anything, mock.Anything)
	})

	t.Run("pipeline without a won stage", func(t *testing.T) {
		deals := new(MockDealRepository)
		pipelines := new(MockPipelineRepository)
		deals.On("GetByID", ctx, int64(20)).Return(&models.Deal{ID: 20, PipelineID: 1, StageID: 2}, nil)
		pipelines.On("GetByID", ctx, int64(1)).Return(&models.Pipeline{ID: 1, Stages: []models.Stage{
			{ID: 2, Kind: models.StageKindOpen},
		}}, nil)

		_, err := NewDealService(deals, pipelines, zap.NewNop()).MoveToFirstWon(ctx, 20)
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("moves to the top of the won stage", func(t *testing.T) {
		deals := new(MockDealRepository)
		pipelines := new(MockPipelineRepository)
		deals.On("GetByID", ctx, int64(20)).Return(&models.Deal{ID: 20, PipelineID: 1, StageID: 2, Status: models.DealOpen}, nil)
		pipelines.On("GetByID", ctx, int64(1)).Return(movePipeline(), nil)
		deals.On("StageOrder", ctx, int64(3)).Return([]int64{30}, nil)
		deals.On("StageOrder", ctx, int64(2)).Return([]int64{20}, nil)
		deals.On("ApplyMove", ctx, mock.MatchedBy(func(mv *models.DealMove) bool {
			return mv.ToStageID == 3 && mv.TargetOrder[0] == 20 && mv.Probability == 100 && mv.ClosedAt != nil
		})).Return(nil)

		_, err := NewDealService(deals, pipelines, zap.NewNop()).MoveToFirstWon(ctx, 20)
		require.NoError(t, err)
		deals.AssertExpectations(t)
	})
}
