package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"crmhub/internal/services"
)

// IntegrationsHandler links CRM users to Telegram chats.
type IntegrationsHandler struct {
	notifications services.NotificationService
	botName       string
	log           *zap.Logger
}

func NewIntegrationsHandler(notifications services.NotificationService, botName string, log *zap.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{notifications: notifications, botName: botName, log: log}
}

// POST /integrations/telegram/request-link
// @Summary      Request a Telegram link code
// @Description  Send "/link CODE" to the bot within the expiry to receive notifications in Telegram.
// @Tags         Integrations
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /integrations/telegram/request-link [post]
func (h *IntegrationsHandler) RequestTelegramLink(c *gin.Context) {
	actor := currentActor(c)
	link, err := h.notifications.RequestTelegramLink(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, h.log, "[tg][request-link]", err)
		return
	}
	h.log.Info("[tg][request-link] code issued", zap.Int64("user_id", actor.UserID))

	resp := gin.H{
		"code":       link.Code,
		"expires_at": link.ExpiresAt.UTC().Format(time.RFC3339),
		"command":    "/link " + link.Code,
	}
	if h.botName != "" {
		resp["deep_link"] = fmt.Sprintf("https://t.me/%s?start=%s", h.botName, link.Code)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /webhooks/telegram
// Telegram retries non-2xx answers, so failures are logged and still acknowledged.
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.log.Warn("[tg][webhook] bad update", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}
	if err := h.notifications.HandleTelegramUpdate(c.Request.Context(), upd); err != nil {
		h.log.Error("[tg][webhook] update failed", zap.Int("update_id", upd.UpdateID), zap.Error(err))
	}
	c.Status(http.StatusOK)
}
