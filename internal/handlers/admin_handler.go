package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/config"
	"crmhub/internal/services"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type AdminHandler struct {
	maintenance services.MaintenanceService
	business    config.BusinessConfig
	db          Pinger
	log         *zap.Logger
}

func NewAdminHandler(maintenance services.MaintenanceService, business config.BusinessConfig, db Pinger, log *zap.Logger) *AdminHandler {
	return &AdminHandler{maintenance: maintenance, business: business, db: db, log: log}
}

type cleanupRequest struct {
	// Days of read notifications to keep; 0 means the default of 90.
	Days int `json:"days"`
}

// @Summary      Clean up old data
// @Description  Deletes read notifications older than days (default 90) and expired password reset tokens.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body      cleanupRequest  false  "Retention"
// @Success      200   {object}  services.CleanupResult
// @Router       /admin/maintenance/cleanup [post]
func (h *AdminHandler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	res, err := h.maintenance.Cleanup(c.Request.Context(), req.Days)
	if err != nil {
		writeError(c, h.log, "[admin][cleanup]", err)
		return
	}
	h.log.Info("[admin][cleanup] ok",
		zap.Int64("user_id", currentActor(c).UserID),
		zap.Int64("notifications", res.NotificationsDeleted),
		zap.Int64("reset_tokens", res.ResetTokensDeleted))
	c.JSON(http.StatusOK, res)
}

// @Summary  Business defaults
// @Tags     Admin
// @Produce  json
// @Success  200  {object}  config.BusinessConfig
// @Router   /settings/business [get]
func (h *AdminHandler) BusinessSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.business)
}

// @Summary  Health check
// @Tags     Admin
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /healthz [get]
func (h *AdminHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.log.Warn("[health] database unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
