package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type DealHandler struct {
	service         services.DealService
	defaultCurrency string
	log             *zap.Logger
}

func NewDealHandler(service services.DealService, defaultCurrency string, log *zap.Logger) *DealHandler {
	return &DealHandler{service: service, defaultCurrency: defaultCurrency, log: log}
}

// @Summary      Create deal
// @Description  Without stage_id the deal goes to the first stage of its pipeline (or of the default pipeline).
// @Tags         Deals
// @Accept       json
// @Produce      json
// @Param        deal  body      models.Deal  true  "Deal"
// @Success      201   {object}  models.Deal
// @Router       /deals [post]
func (h *DealHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var deal models.Deal
	if err := decodeBody(c, authz.EntityDeal, &deal); err != nil {
		writeError(c, h.log, "[deals][create]", err)
		return
	}
	deal.ID = 0
	if deal.OwnerID == 0 {
		deal.OwnerID = actor.UserID
	}
	if deal.Currency == "" {
		deal.Currency = h.defaultCurrency
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionCreate, deal.OwnerID) {
		return
	}
	if err := h.service.Create(c.Request.Context(), &deal); err != nil {
		writeError(c, h.log, "[deals][create]", err)
		return
	}
	h.log.Info("[deals][create] ok",
		zap.Int64("deal_id", deal.ID), zap.Int64("stage_id", deal.StageID), zap.Int64("user_id", actor.UserID))
	respond(c, h.log, http.StatusCreated, authz.EntityDeal, &deal)
}

// @Summary  Get deal
// @Tags     Deals
// @Produce  json
// @Param    id   path      int  true  "Deal ID"
// @Success  200  {object}  models.Deal
// @Router   /deals/{id} [get]
func (h *DealHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	deal, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[deals][get]", err)
		return
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionView, deal.OwnerID) {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityDeal, deal)
}

// parseTime accepts RFC3339 or a plain date.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func dealFilterFromQuery(c *gin.Context) (models.DealFilter, error) {
	f := models.DealFilter{
		Currency: strings.ToUpper(strings.TrimSpace(c.Query("currency"))),
		SortBy:   c.DefaultQuery("sort_by", "created_at"),
		Order:    c.DefaultQuery("order", "desc"),
	}
	f.Limit, f.Offset = pagination(c)

	var err error
	for name, dst := range map[string]**int64{
		"pipeline_id": &f.PipelineID,
		"stage_id":    &f.StageID,
		"owner_id":    &f.OwnerID,
		"contact_id":  &f.ContactID,
	} {
		if *dst, err = optionalID(c, name); err != nil {
			return f, err
		}
	}

	if v := c.Query("status"); v != "" {
		st := models.DealStatus(v)
		switch st {
		case models.DealOpen, models.DealWon, models.DealLost:
		default:
			return f, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, v)
		}
		f.Status = &st
	}
	for name, dst := range map[string]**decimal.Decimal{"amount_min": &f.AmountMin, "amount_max": &f.AmountMax} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid %s", models.ErrInvalidInput, name)
		}
		*dst = &d
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid %s, use RFC3339 or YYYY-MM-DD", models.ErrInvalidInput, name)
		}
		*dst = &t
	}
	return f, nil
}

// @Summary      List deals
// @Description  Filters combine with AND. sort_by is limited to a fixed set of columns.
// @Tags         Deals
// @Produce      json
// @Param        status       query    string  false  "open|won|lost"
// @Param        pipeline_id  query    int     false  "Pipeline"
// @Param        stage_id     query    int     false  "Stage"
// @Param        owner_id     query    int     false  "Owner"
// @Param        contact_id   query    int     false  "Contact"
// @Param        currency     query    string  false  "Currency"
// @Param        amount_min   query    string  false  "Minimum amount"
// @Param        amount_max   query    string  false  "Maximum amount"
// @Param        from         query    string  false  "Created from"
// @Param        to           query    string  false  "Created to"
// @Param        sort_by      query    string  false  "Sort column"
// @Param        order        query    string  false  "asc|desc"
// @Param        page         query    int     false  "Page"
// @Param        size         query    int     false  "Page size"
// @Success      200          {array}  models.Deal
// @Router       /deals [get]
func (h *DealHandler) List(c *gin.Context) {
	f, err := dealFilterFromQuery(c)
	if err != nil {
		writeError(c, h.log, "[deals][list]", err)
		return
	}
	if own := middleware.PolicyFrom(c).OwnerFilter(authz.EntityDeal, authz.ActionView, currentActor(c).UserID); own != nil {
		f.OwnerID = own
	}
	deals, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[deals][list]", err)
		return
	}
	if deals == nil {
		deals = []*models.Deal{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityDeal, deals)
}

// @Summary      Update deal
// @Description  Stage, position and status only change through the move endpoint.
// @Tags         Deals
// @Accept       json
// @Produce      json
// @Param        id    path      int          true  "Deal ID"
// @Param        deal  body      models.Deal  true  "Fields to change"
// @Success      200   {object}  models.Deal
// @Router       /deals/{id} [put]
func (h *DealHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	deal, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[deals][update]", err)
		return
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionEdit, deal.OwnerID) {
		return
	}
	stored := *deal
	if err := decodeBody(c, authz.EntityDeal, deal); err != nil {
		writeError(c, h.log, "[deals][update]", err)
		return
	}
	deal.ID = id
	deal.PipelineID, deal.StageID, deal.Position = stored.PipelineID, stored.StageID, stored.Position
	deal.Status, deal.ClosedAt = stored.Status, stored.ClosedAt
	if !canAccess(c, authz.EntityDeal, authz.ActionEdit, deal.OwnerID) {
		return
	}
	if err := h.service.Update(ctx, deal); err != nil {
		writeError(c, h.log, "[deals][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityDeal, deal)
}

// @Summary  Delete deal
// @Tags     Deals
// @Param    id  path  int  true  "Deal ID"
// @Success  204
// @Router   /deals/{id} [delete]
func (h *DealHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	deal, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[deals][delete]", err)
		return
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionDelete, deal.OwnerID) {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeError(c, h.log, "[deals][delete]", err)
		return
	}
	h.log.Info("[deals][delete] ok", zap.Int64("deal_id", id), zap.Int64("user_id", currentActor(c).UserID))
	c.Status(http.StatusNoContent)
}

type moveDealRequest struct {
	StageID  int64 `json:"stage_id" binding:"required"`
	Position *int  `json:"position"`
}

// @Summary      Move deal on the board
// @Description  Inserts the deal at position (clamped) in the target stage of the same pipeline and renumbers both stages. Without position the deal goes to the end.
// @Tags         Deals
// @Accept       json
// @Produce      json
// @Param        id    path      int              true  "Deal ID"
// @Param        move  body      moveDealRequest  true  "Target"
// @Success      200   {object}  models.Deal
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /deals/{id}/move [post]
func (h *DealHandler) Move(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req moveDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	deal, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[deals][move]", err)
		return
	}
	if !canAccess(c, authz.EntityDeal, authz.ActionEdit, deal.OwnerID) {
		return
	}
	// max int clamps to the end of the stage
	position := int(^uint(0) >> 1)
	if req.Position != nil {
		position = *req.Position
	}
	moved, err := h.service.Move(ctx, id, req.StageID, position)
	if err != nil {
		writeError(c, h.log, "[deals][move]", err)
		return
	}
	h.log.Info("[deals][move] ok",
		zap.Int64("deal_id", id), zap.Int64("from_stage", deal.StageID),
		zap.Int64("to_stage", moved.StageID), zap.Int("position", moved.Position))
	respond(c, h.log, http.StatusOK, authz.EntityDeal, moved)
}
