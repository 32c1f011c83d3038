package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type PipelineHandler struct {
	service services.PipelineService
	deals   services.DealService
	log     *zap.Logger
}

func NewPipelineHandler(service services.PipelineService, deals services.DealService, log *zap.Logger) *PipelineHandler {
	return &PipelineHandler{service: service, deals: deals, log: log}
}

// @Summary      Create pipeline
// @Description  Stages are created in body order; won stages default to probability 100, lost stages are 0.
// @Tags         Pipelines
// @Accept       json
// @Produce      json
// @Param        pipeline  body      models.Pipeline  true  "Pipeline with stages"
// @Success      201       {object}  models.Pipeline
// @Router       /pipelines [post]
func (h *PipelineHandler) Create(c *gin.Context) {
	var p models.Pipeline
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err.Error())
		return
	}
	p.ID = 0
	if err := h.service.Create(c.Request.Context(), &p); err != nil {
		writeError(c, h.log, "[pipelines][create]", err)
		return
	}
	h.log.Info("[pipelines][create] ok", zap.Int64("pipeline_id", p.ID), zap.Int("stages", len(p.Stages)))
	c.JSON(http.StatusCreated, p)
}

// @Summary  List pipelines
// @Tags     Pipelines
// @Produce  json
// @Success  200  {array}  models.Pipeline
// @Router   /pipelines [get]
func (h *PipelineHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, "[pipelines][list]", err)
		return
	}
	if list == nil {
		list = []*models.Pipeline{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary  Get pipeline
// @Tags     Pipelines
// @Produce  json
// @Param    id   path      int  true  "Pipeline ID"
// @Success  200  {object}  models.Pipeline
// @Router   /pipelines/{id} [get]
func (h *PipelineHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[pipelines][get]", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Update pipeline
// @Description  Renames the pipeline and edits existing stages; stages cannot be added or removed.
// @Tags         Pipelines
// @Accept       json
// @Produce      json
// @Param        id        path      int              true  "Pipeline ID"
// @Param        pipeline  body      models.Pipeline  true  "Pipeline"
// @Success      200       {object}  models.Pipeline
// @Router       /pipelines/{id} [put]
func (h *PipelineHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p models.Pipeline
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err.Error())
		return
	}
	p.ID = id
	if err := h.service.Update(c.Request.Context(), &p); err != nil {
		writeError(c, h.log, "[pipelines][update]", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary  Delete pipeline
// @Tags     Pipelines
// @Param    id  path  int  true  "Pipeline ID"
// @Success  204
// @Failure  409  {object}  map[string]string
// @Router   /pipelines/{id} [delete]
func (h *PipelineHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.log, "[pipelines][delete]", err)
		return
	}
	h.log.Info("[pipelines][delete] ok", zap.Int64("pipeline_id", id))
	c.Status(http.StatusNoContent)
}

// @Summary      Kanban board
// @Description  Stages in order with their deals, counts, totals and weighted totals. Own scope only shows own deals.
// @Tags         Pipelines
// @Produce      json
// @Param        id   path      int  true  "Pipeline ID"
// @Success      200  {object}  models.Board
// @Router       /pipelines/{id}/board [get]
func (h *PipelineHandler) Board(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p := middleware.PolicyFrom(c)
	if !p.Allows(authz.EntityDeal, authz.ActionView) {
		forbidden(c)
		return
	}
	owner := p.OwnerFilter(authz.EntityDeal, authz.ActionView, currentActor(c).UserID)
	board, err := h.deals.Board(c.Request.Context(), id, owner)
	if err != nil {
		writeError(c, h.log, "[pipelines][board]", err)
		return
	}

	columns := make([]gin.H, 0, len(board.Columns))
	for _, col := range board.Columns {
		deals, err := p.Redact(authz.EntityDeal, col.Deals)
		if err != nil {
			writeError(c, h.log, "[pipelines][board]", err)
			return
		}
		columns = append(columns, gin.H{
			"stage":    col.Stage,
			"deals":    deals,
			"count":    col.Count,
			"total":    col.Total,
			"weighted": col.Weighted,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pipeline": board.Pipeline, "columns": columns})
}
