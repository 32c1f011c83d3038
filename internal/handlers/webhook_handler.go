package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/esign"
	"crmhub/internal/services"
)

// WebhookHandler receives e-signature vendor callbacks. The routes are
// public; each provider authenticates its deliveries by signature.
type WebhookHandler struct {
	service services.SignatureWebhookService
	log     *zap.Logger
}

func NewWebhookHandler(service services.SignatureWebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// @Summary      E-signature webhook
// @Description  docusign, hellosign or pandadoc. Unknown envelopes and events are acknowledged with 200.
// @Tags         Webhooks
// @Accept       json
// @Produce      plain
// @Param        provider  path      string  true  "docusign|hellosign|pandadoc"
// @Success      200       {string}  string
// @Failure      401       {object}  map[string]string
// @Failure      404       {object}  map[string]string
// @Router       /webhooks/esign/{provider} [post]
func (h *WebhookHandler) ESign(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, "cannot read body")
		return
	}
	d := esign.Delivery{
		Header: c.Request.Header,
		Query:  c.Request.URL.Query(),
		Body:   body,
	}
	ack, err := h.service.Handle(c.Request.Context(), provider, d)
	if err != nil {
		writeError(c, h.log, "[webhooks][esign]", err)
		return
	}
	c.String(http.StatusOK, ack)
}
