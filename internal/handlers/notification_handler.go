package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/realtime"
	"crmhub/internal/services"
)

type NotificationHandler struct {
	service services.NotificationService
	hub     *realtime.Hub
	log     *zap.Logger
}

func NewNotificationHandler(service services.NotificationService, hub *realtime.Hub, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, hub: hub, log: log}
}

// @Summary  List my notifications
// @Tags     Notifications
// @Produce  json
// @Param    unread  query     bool  false  "Only unread"
// @Param    page    query     int   false  "Page"
// @Param    size    query     int   false  "Page size"
// @Success  200     {object}  map[string]interface{}
// @Router   /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor := currentActor(c)
	ctx := c.Request.Context()
	limit, offset := pagination(c)
	unread := c.Query("unread") == "true" || c.Query("unread") == "1"

	items, err := h.service.List(ctx, actor.UserID, unread, limit, offset)
	if err != nil {
		writeError(c, h.log, "[notifications][list]", err)
		return
	}
	count, err := h.service.UnreadCount(ctx, actor.UserID)
	if err != nil {
		writeError(c, h.log, "[notifications][list]", err)
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "unread": count})
}

// @Summary  Mark a notification as read
// @Tags     Notifications
// @Param    id  path  int  true  "Notification ID"
// @Success  204
// @Router   /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), currentActor(c).UserID, id); err != nil {
		writeError(c, h.log, "[notifications][read]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary  Mark all my notifications as read
// @Tags     Notifications
// @Produce  json
// @Success  200  {object}  map[string]int64
// @Router   /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.service.MarkAllRead(c.Request.Context(), currentActor(c).UserID)
	if err != nil {
		writeError(c, h.log, "[notifications][read-all]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// @Summary      Live notifications
// @Description  WebSocket; browsers pass the token as access_token query parameter.
// @Tags         Notifications
// @Router       /notifications/ws [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor := currentActor(c)
	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.log.Warn("[ws][upgrade] failed", zap.Int64("user_id", actor.UserID), zap.Error(err))
		return
	}
	h.hub.Register(actor.TenantID, actor.UserID, conn)
	defer h.hub.Unregister(actor.TenantID, actor.UserID, conn)

	h.log.Debug("[ws][connect]", zap.Int64("tenant_id", actor.TenantID), zap.Int64("user_id", actor.UserID))
	conn.Serve()
	h.log.Debug("[ws][disconnect]", zap.Int64("tenant_id", actor.TenantID), zap.Int64("user_id", actor.UserID))
}
