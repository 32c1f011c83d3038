package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type QuoteHandler struct {
	service services.QuoteService
	deals   services.DealService
	log     *zap.Logger
}

func NewQuoteHandler(service services.QuoteService, deals services.DealService, log *zap.Logger) *QuoteHandler {
	return &QuoteHandler{service: service, deals: deals, log: log}
}

// load fetches the quote and answers 403/404 unless the actor may act on it.
func (h *QuoteHandler) load(c *gin.Context, op string, a authz.Action) (*models.Quote, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	q, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, op, err)
		return nil, false
	}
	if !canAccess(c, authz.EntityQuote, a, q.OwnerID) {
		return nil, false
	}
	return q, true
}

// @Summary      Create quote
// @Description  Totals are computed from the items; the quote starts as draft.
// @Tags         Quotes
// @Accept       json
// @Produce      json
// @Param        quote  body      models.Quote  true  "Quote with items"
// @Success      201    {object}  models.Quote
// @Router       /quotes [post]
func (h *QuoteHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var q models.Quote
	if err := decodeBody(c, authz.EntityQuote, &q); err != nil {
		writeError(c, h.log, "[quotes][create]", err)
		return
	}
	q.ID = 0
	if q.OwnerID == 0 {
		q.OwnerID = actor.UserID
	}
	if !canAccess(c, authz.EntityQuote, authz.ActionCreate, q.OwnerID) {
		return
	}
	ctx := c.Request.Context()
	deal, err := h.deals.GetByID(ctx, q.DealID)
	if err != nil {
		writeError(c, h.log, "[quotes][create]", fmt.Errorf("%w: deal %d: %v", models.ErrInvalidInput, q.DealID, err))
		return
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionView, deal.OwnerID) {
		return
	}
	if err := h.service.Create(ctx, &q); err != nil {
		writeError(c, h.log, "[quotes][create]", err)
		return
	}
	h.log.Info("[quotes][create] ok",
		zap.Int64("quote_id", q.ID), zap.String("number", q.Number), zap.String("total", q.Total.StringFixed(2)))
	respond(c, h.log, http.StatusCreated, authz.EntityQuote, &q)
}

// @Summary  Get quote
// @Tags     Quotes
// @Produce  json
// @Param    id   path      int  true  "Quote ID"
// @Success  200  {object}  models.Quote
// @Router   /quotes/{id} [get]
func (h *QuoteHandler) GetByID(c *gin.Context) {
	q, ok := h.load(c, "[quotes][get]", authz.ActionView)
	if !ok {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityQuote, q)
}

// @Summary  List quotes
// @Tags     Quotes
// @Produce  json
// @Param    deal_id  query    int     false  "Deal"
// @Param    status   query    string  false  "Status"
// @Param    page     query    int     false  "Page"
// @Param    size     query    int     false  "Page size"
// @Success  200      {array}  models.Quote
// @Router   /quotes [get]
func (h *QuoteHandler) List(c *gin.Context) {
	var (
		f   models.QuoteFilter
		err error
	)
	f.Limit, f.Offset = pagination(c)
	if f.DealID, err = optionalID(c, "deal_id"); err != nil {
		writeError(c, h.log, "[quotes][list]", err)
		return
	}
	if v := c.Query("status"); v != "" {
		st := models.QuoteStatus(v)
		f.Status = &st
	}
	f.OwnerID = middleware.PolicyFrom(c).OwnerFilter(authz.EntityQuote, authz.ActionView, currentActor(c).UserID)

	quotes, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[quotes][list]", err)
		return
	}
	if quotes == nil {
		quotes = []*models.Quote{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityQuote, quotes)
}

// @Summary      Update quote
// @Description  Only drafts can be edited; items are replaced and totals recomputed.
// @Tags         Quotes
// @Accept       json
// @Produce      json
// @Param        id     path      int           true  "Quote ID"
// @Param        quote  body      models.Quote  true  "Fields to change"
// @Success      200    {object}  models.Quote
// @Failure      409    {object}  map[string]string
// @Router       /quotes/{id} [put]
func (h *QuoteHandler) Update(c *gin.Context) {
	q, ok := h.load(c, "[quotes][update]", authz.ActionEdit)
	if !ok {
		return
	}
	id := q.ID
	if err := decodeBody(c, authz.EntityQuote, q); err != nil {
		writeError(c, h.log, "[quotes][update]", err)
		return
	}
	q.ID = id
	if err := h.service.Update(c.Request.Context(), q); err != nil {
		writeError(c, h.log, "[quotes][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityQuote, q)
}

// @Summary  Delete quote
// @Tags     Quotes
// @Param    id  path  int  true  "Quote ID"
// @Success  204
// @Router   /quotes/{id} [delete]
func (h *QuoteHandler) Delete(c *gin.Context) {
	q, ok := h.load(c, "[quotes][delete]", authz.ActionDelete)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), q.ID); err != nil {
		writeError(c, h.log, "[quotes][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sendQuoteRequest struct {
	Provider   string `json:"provider" binding:"required"`
	EnvelopeID string `json:"envelope_id" binding:"required"`
}

// @Summary      Mark quote as sent for signature
// @Description  Records the signing provider and its envelope id so webhooks can find the quote.
// @Tags         Quotes
// @Accept       json
// @Produce      json
// @Param        id    path      int               true  "Quote ID"
// @Param        body  body      sendQuoteRequest  true  "Envelope"
// @Success      200   {object}  models.Quote
// @Failure      422   {object}  map[string]string
// @Router       /quotes/{id}/send [post]
func (h *QuoteHandler) Send(c *gin.Context) {
	q, ok := h.load(c, "[quotes][send]", authz.ActionEdit)
	if !ok {
		return
	}
	var req sendQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sent, err := h.service.Send(c.Request.Context(), q.ID, req.Provider, req.EnvelopeID)
	if err != nil {
		writeError(c, h.log, "[quotes][send]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityQuote, sent)
}

type quoteTransitionRequest struct {
	Status models.QuoteStatus `json:"status" binding:"required"`
}

// @Summary      Change quote status manually
// @Description  Applies the same transition rules as signature webhooks, e.g. to expire a quote.
// @Tags         Quotes
// @Accept       json
// @Produce      json
// @Param        id    path      int                     true  "Quote ID"
// @Param        body  body      quoteTransitionRequest  true  "Target status"
// @Success      200   {object}  models.Quote
// @Failure      422   {object}  map[string]string
// @Router       /quotes/{id}/status [post]
func (h *QuoteHandler) Transition(c *gin.Context) {
	q, ok := h.load(c, "[quotes][status]", authz.ActionEdit)
	if !ok {
		return
	}
	var req quoteTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	updated, err := h.service.Transition(c.Request.Context(), q.ID, req.Status)
	if err != nil {
		writeError(c, h.log, "[quotes][status]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityQuote, updated)
}

// @Summary  Quote PDF
// @Tags     Quotes
// @Produce  application/pdf
// @Param    id  path  int  true  "Quote ID"
// @Success  200
// @Router   /quotes/{id}/pdf [get]
func (h *QuoteHandler) PDF(c *gin.Context) {
	q, ok := h.load(c, "[quotes][pdf]", authz.ActionView)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if _, err := h.service.RenderPDF(c.Request.Context(), q.ID, &buf); err != nil {
		writeError(c, h.log, "[quotes][pdf]", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, q.Number))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
