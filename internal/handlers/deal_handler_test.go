package handlers

import (
	"fmt"
	"math"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
)

func dealRouter(svc *MockDealService, userID, roleID int64) *gin.Engine {
	h := NewDealHandler(svc, "USD", zap.NewNop())
	r := newEngine()
	r.Use(actorAs(userID, roleID))
	r.POST("/deals/:id/move", perm(authz.EntityDeal, authz.ActionEdit), h.Move)
	return r
}

func sampleDeal(owner int64) *models.Deal {
	return &models.Deal{
		ID: 11, TenantID: testTenant, PipelineID: 1, StageID: 2, Position: 0,
		Title: "Renewal", OwnerID: owner, Amount: decimal.RequireFromString("1200.00"),
		Currency: "USD", Probability: 20, Status: models.DealOpen,
	}
}

func TestDealMove(t *testing.T) {
	tests := []struct {
		name         string
		user, role   int64
		body         string
		owner        int64
		wantPosition int
		moveErr      error
		wantStatus   int
	}{
		{"explicit position", salesUser, authz.RoleSales, `{"stage_id":3,"position":2}`, salesUser, 2, nil, http.StatusOK},
		{"no position appends", salesUser, authz.RoleSales, `{"stage_id":3}`, salesUser, math.MaxInt, nil, http.StatusOK},
		{"stale board", 1, authz.RoleOperations, `{"stage_id":3,"position":0}`, otherUser, 0, fmt.Errorf("move: %w", models.ErrConflict), http.StatusConflict},
		{"stage of another pipeline", 1, authz.RoleAdmin, `{"stage_id":99,"position":0}`, otherUser, 0, models.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDealService)
			svc.On("GetByID", mock.Anything, int64(11)).Return(sampleDeal(tt.owner), nil)
			moved := sampleDeal(tt.owner)
			moved.StageID, moved.Position = 3, 1
			if tt.moveErr != nil {
				svc.On("Move", mock.Anything, int64(11), mock.Anything, tt.wantPosition).Return(nil, tt.moveErr)
			} else {
				svc.On("Move", mock.Anything, int64(11), int64(3), tt.wantPosition).Return(moved, nil)
			}

			w := doJSON(t, dealRouter(svc, tt.user, tt.role), http.MethodPost, "/deals/11/move", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}

func TestDealMove_SalesCannotMoveOthersDeal(t *testing.T) {
	svc := new(MockDealService)
	svc.On("GetByID", mock.Anything, int64(11)).Return(sampleDeal(otherUser), nil)

	w := doJSON(t, dealRouter(svc, salesUser, authz.RoleSales), http.MethodPost, "/deals/11/move", `{"stage_id":3}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Move", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDealMove_RequiresStage(t *testing.T) {
	svc := new(MockDealService)
	w := doJSON(t, dealRouter(svc, salesUser, authz.RoleSales), http.MethodPost, "/deals/11/move", `{"position":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealMove_ProbabilityStaysVisibleToSales(t *testing.T) {
	svc := new(MockDealService)
	svc.On("GetByID", mock.Anything, int64(11)).Return(sampleDeal(salesUser), nil)
	moved := sampleDeal(salesUser)
	moved.StageID = 3
	svc.On("Move", mock.Anything, int64(11), int64(3), 0).Return(moved, nil)

	w := doJSON(t, dealRouter(svc, salesUser, authz.RoleSales), http.MethodPost, "/deals/11/move", `{"stage_id":3,"position":0}`)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.EqualValues(t, 20, got["probability"])
	assert.EqualValues(t, 3, got["stage_id"])
}
