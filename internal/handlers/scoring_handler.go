package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/services"
)

type ScoringHandler struct {
	service services.ScoringService
	log     *zap.Logger
}

func NewScoringHandler(service services.ScoringService, log *zap.Logger) *ScoringHandler {
	return &ScoringHandler{service: service, log: log}
}

// @Summary      Create scoring model
// @Description  Rules map event types to points; thresholds map minimum scores to lifecycle stages.
// @Tags         Scoring
// @Accept       json
// @Produce      json
// @Param        model  body      models.ScoringModel  true  "Model"
// @Success      201    {object}  models.ScoringModel
// @Router       /scoring-models [post]
func (h *ScoringHandler) Create(c *gin.Context) {
	var m models.ScoringModel
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err.Error())
		return
	}
	m.ID = 0
	if err := h.service.CreateModel(c.Request.Context(), &m); err != nil {
		writeError(c, h.log, "[scoring][create]", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// @Summary  List scoring models
// @Tags     Scoring
// @Produce  json
// @Success  200  {array}  models.ScoringModel
// @Router   /scoring-models [get]
func (h *ScoringHandler) List(c *gin.Context) {
	list, err := h.service.ListModels(c.Request.Context())
	if err != nil {
		writeError(c, h.log, "[scoring][list]", err)
		return
	}
	if list == nil {
		list = []*models.ScoringModel{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary  Get scoring model
// @Tags     Scoring
// @Produce  json
// @Param    id   path      int  true  "Model ID"
// @Success  200  {object}  models.ScoringModel
// @Router   /scoring-models/{id} [get]
func (h *ScoringHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	m, err := h.service.GetModel(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[scoring][get]", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary  Update scoring model
// @Tags     Scoring
// @Accept   json
// @Produce  json
// @Param    id     path      int                  true  "Model ID"
// @Param    model  body      models.ScoringModel  true  "Model"
// @Success  200    {object}  models.ScoringModel
// @Router   /scoring-models/{id} [put]
func (h *ScoringHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var m models.ScoringModel
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err.Error())
		return
	}
	m.ID = id
	if err := h.service.UpdateModel(c.Request.Context(), &m); err != nil {
		writeError(c, h.log, "[scoring][update]", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary  Delete scoring model
// @Tags     Scoring
// @Param    id  path  int  true  "Model ID"
// @Success  204
// @Router   /scoring-models/{id} [delete]
func (h *ScoringHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteModel(c.Request.Context(), id); err != nil {
		writeError(c, h.log, "[scoring][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Activate scoring model
// @Description  Deactivates every other model of the tenant.
// @Tags         Scoring
// @Param        id  path  int  true  "Model ID"
// @Success      204
// @Router       /scoring-models/{id}/activate [post]
func (h *ScoringHandler) Activate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.ActivateModel(c.Request.Context(), id); err != nil {
		writeError(c, h.log, "[scoring][activate]", err)
		return
	}
	h.log.Info("[scoring][activate] ok", zap.Int64("model_id", id), zap.Int64("user_id", currentActor(c).UserID))
	c.Status(http.StatusNoContent)
}
