package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/reportquery"
	"crmhub/internal/services"
)

type ReportHandler struct {
	service services.ReportService
	log     *zap.Logger
}

func NewReportHandler(service services.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{service: service, log: log}
}

func (h *ReportHandler) load(c *gin.Context, op string, a authz.Action) (*models.ReportDefinition, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	def, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, op, err)
		return nil, false
	}
	if !canAccess(c, authz.EntityReport, a, def.OwnerID) {
		return nil, false
	}
	return def, true
}

// GET /reports/summary
// @Summary      Pipeline summary
// @Description  Open pipeline value, weighted forecast, won and lost counts, and contacts per lifecycle stage.
// @Tags         Reports
// @Produce      json
// @Success      200  {object}  models.PipelineSummary
// @Router       /reports/summary [get]
func (h *ReportHandler) GetSummary(c *gin.Context) {
	sum, err := h.service.Summary(c.Request.Context(), middleware.PolicyFrom(c), currentActor(c).UserID)
	if err != nil {
		writeError(c, h.log, "[reports][summary]", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GET /reports/catalog
// @Summary      Reportable fields
// @Description  Entities and field types the actor may report on.
// @Tags         Reports
// @Produce      json
// @Success      200  {object}  map[string]map[string]string
// @Router       /reports/catalog [get]
func (h *ReportHandler) Catalog(c *gin.Context) {
	p := middleware.PolicyFrom(c)
	out := make(map[string]map[string]string)
	for name, fields := range reportquery.Catalog() {
		e, ok := reportquery.Lookup(name)
		if !ok || !p.Allows(e.Authz, authz.ActionView) {
			continue
		}
		for f := range fields {
			if p.FieldAccess(e.Authz, f) == authz.FieldHidden {
				delete(fields, f)
			}
		}
		out[name] = fields
	}
	c.JSON(http.StatusOK, out)
}

// POST /reports/run
// @Summary      Run an ad-hoc report
// @Description  Own scope limits rows to the actor's records; masked and hidden fields follow the role.
// @Tags         Reports
// @Accept       json
// @Produce      json
// @Param        report  body      models.ReportDefinition  true  "Definition"
// @Success      200     {object}  models.ReportResult
// @Failure      400     {object}  map[string]string
// @Router       /reports/run [post]
func (h *ReportHandler) Run(c *gin.Context) {
	var def models.ReportDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.run(c, &def)
}

// POST /reports/:id/run
// @Summary  Run a saved report
// @Tags     Reports
// @Produce  json
// @Param    id   path      int  true  "Report ID"
// @Success  200  {object}  models.ReportResult
// @Router   /reports/{id}/run [post]
func (h *ReportHandler) RunSaved(c *gin.Context) {
	def, ok := h.load(c, "[reports][run]", authz.ActionView)
	if !ok {
		return
	}
	h.run(c, def)
}

func (h *ReportHandler) run(c *gin.Context, def *models.ReportDefinition) {
	actor := currentActor(c)
	res, err := h.service.Run(c.Request.Context(), def, middleware.PolicyFrom(c), actor.UserID)
	if err != nil {
		writeError(c, h.log, "[reports][run]", err)
		return
	}
	h.log.Debug("[reports][run] ok",
		zap.String("entity", def.Entity), zap.Int("rows", len(res.Rows)), zap.Int64("user_id", actor.UserID))
	c.JSON(http.StatusOK, res)
}

// POST /reports
// @Summary  Save report definition
// @Tags     Reports
// @Accept   json
// @Produce  json
// @Param    report  body      models.ReportDefinition  true  "Definition"
// @Success  201     {object}  models.ReportDefinition
// @Router   /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var def models.ReportDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err.Error())
		return
	}
	def.ID = 0
	def.OwnerID = currentActor(c).UserID
	if err := h.service.Create(c.Request.Context(), &def); err != nil {
		writeError(c, h.log, "[reports][create]", err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// GET /reports
// @Summary  List saved reports
// @Tags     Reports
// @Produce  json
// @Success  200  {array}  models.ReportDefinition
// @Router   /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	owner := middleware.PolicyFrom(c).OwnerFilter(authz.EntityReport, authz.ActionView, currentActor(c).UserID)
	list, err := h.service.List(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.log, "[reports][list]", err)
		return
	}
	if list == nil {
		list = []*models.ReportDefinition{}
	}
	c.JSON(http.StatusOK, list)
}

// GET /reports/:id
// @Summary  Get saved report
// @Tags     Reports
// @Produce  json
// @Param    id   path      int  true  "Report ID"
// @Success  200  {object}  models.ReportDefinition
// @Router   /reports/{id} [get]
func (h *ReportHandler) GetByID(c *gin.Context) {
	def, ok := h.load(c, "[reports][get]", authz.ActionView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, def)
}

// PUT /reports/:id
// @Summary  Update saved report
// @Tags     Reports
// @Accept   json
// @Produce  json
// @Param    id      path      int                      true  "Report ID"
// @Param    report  body      models.ReportDefinition  true  "Definition"
// @Success  200     {object}  models.ReportDefinition
// @Router   /reports/{id} [put]
func (h *ReportHandler) Update(c *gin.Context) {
	current, ok := h.load(c, "[reports][update]", authz.ActionEdit)
	if !ok {
		return
	}
	var def models.ReportDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err.Error())
		return
	}
	def.ID, def.OwnerID = current.ID, current.OwnerID
	if err := h.service.Update(c.Request.Context(), &def); err != nil {
		writeError(c, h.log, "[reports][update]", err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// DELETE /reports/:id
// @Summary  Delete saved report
// @Tags     Reports
// @Param    id  path  int  true  "Report ID"
// @Success  204
// @Router   /reports/{id} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	def, ok := h.load(c, "[reports][delete]", authz.ActionDelete)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), def.ID); err != nil {
		writeError(c, h.log, "[reports][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
