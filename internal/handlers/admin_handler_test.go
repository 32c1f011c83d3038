package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/config"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

func adminRouter(svc *MockMaintenanceService, db Pinger, roleID int64) *gin.Engine {
	h := NewAdminHandler(svc, config.BusinessConfig{CompanyName: "Acme", DefaultCurrency: "EUR", Timezone: "Europe/Berlin"}, db, zap.NewNop())
	r := newEngine()
	r.GET("/healthz", h.Healthz)
	r.Use(actorAs(1, roleID))
	r.GET("/settings/business", h.BusinessSettings)
	r.POST("/admin/maintenance/cleanup", middleware.RequireRoles(authz.RoleAdmin), h.Cleanup)
	return r
}

func TestCleanup(t *testing.T) {
	svc := new(MockMaintenanceService)
	svc.On("Cleanup", mock.Anything, 30).Return(&services.CleanupResult{NotificationsDeleted: 12, ResetTokensDeleted: 3}, nil)

	w := doJSON(t, adminRouter(svc, nil, authz.RoleAdmin), http.MethodPost, "/admin/maintenance/cleanup", `{"days":30}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notifications_deleted":12,"reset_tokens_deleted":3}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestCleanup_EmptyBodyUsesDefault(t *testing.T) {
	svc := new(MockMaintenanceService)
	svc.On("Cleanup", mock.Anything, 0).Return(&services.CleanupResult{}, nil)

	w := doJSON(t, adminRouter(svc, nil, authz.RoleAdmin), http.MethodPost, "/admin/maintenance/cleanup", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestCleanup_NegativeDays(t *testing.T) {
	svc := new(MockMaintenanceService)
	svc.On("Cleanup", mock.Anything, -1).Return(nil, models.ErrInvalidInput)

	w := doJSON(t, adminRouter(svc, nil, authz.RoleAdmin), http.MethodPost, "/admin/maintenance/cleanup", `{"days":-1}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanup_AdminOnly(t *testing.T) {
	svc := new(MockMaintenanceService)
	w := doJSON(t, adminRouter(svc, nil, authz.RoleManagement), http.MethodPost, "/admin/maintenance/cleanup", `{"days":30}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}

func TestBusinessSettings(t *testing.T) {
	w := doJSON(t, adminRouter(new(MockMaintenanceService), nil, authz.RoleSales), http.MethodGet, "/settings/business", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"company_name":"Acme","default_currency":"EUR","timezone":"Europe/Berlin"}`, w.Body.String())
}

func TestHealthz(t *testing.T) {
	w := doJSON(t, adminRouter(new(MockMaintenanceService), stubPinger{}, authz.RoleSales), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, adminRouter(new(MockMaintenanceService), stubPinger{err: errors.New("dial tcp: refused")}, authz.RoleSales), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")
}
