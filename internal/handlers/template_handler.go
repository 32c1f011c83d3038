package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/services"
)

type TemplateHandler struct {
	service services.TemplateService
	log     *zap.Logger
}

func NewTemplateHandler(service services.TemplateService, log *zap.Logger) *TemplateHandler {
	return &TemplateHandler{service: service, log: log}
}

// @Summary      Create email template
// @Description  Subject and body are Go templates over .FirstName .LastName .Email .Company .Sender and are checked on save.
// @Tags         Email templates
// @Accept       json
// @Produce      json
// @Param        template  body      models.EmailTemplate  true  "Template"
// @Success      201       {object}  models.EmailTemplate
// @Failure      400       {object}  map[string]string
// @Router       /email-templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	var t models.EmailTemplate
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err.Error())
		return
	}
	t.ID = 0
	if err := h.service.Create(c.Request.Context(), &t); err != nil {
		writeError(c, h.log, "[templates][create]", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary  List email templates
// @Tags     Email templates
// @Produce  json
// @Success  200  {array}  models.EmailTemplate
// @Router   /email-templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, "[templates][list]", err)
		return
	}
	if list == nil {
		list = []*models.EmailTemplate{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary  Get email template
// @Tags     Email templates
// @Produce  json
// @Param    id   path      int  true  "Template ID"
// @Success  200  {object}  models.EmailTemplate
// @Router   /email-templates/{id} [get]
func (h *TemplateHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[templates][get]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary  Update email template
// @Tags     Email templates
// @Accept   json
// @Produce  json
// @Param    id        path      int                   true  "Template ID"
// @Param    template  body      models.EmailTemplate  true  "Template"
// @Success  200       {object}  models.EmailTemplate
// @Router   /email-templates/{id} [put]
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var t models.EmailTemplate
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err.Error())
		return
	}
	t.ID = id
	if err := h.service.Update(c.Request.Context(), &t); err != nil {
		writeError(c, h.log, "[templates][update]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary  Delete email template
// @Tags     Email templates
// @Param    id  path  int  true  "Template ID"
// @Success  204
// @Router   /email-templates/{id} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.log, "[templates][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Preview email template
// @Description  Renders with the posted values, or with sample values when the body is empty.
// @Tags         Email templates
// @Accept       json
// @Produce      json
// @Param        id    path      int                    true   "Template ID"
// @Param        data  body      services.TemplateData  false  "Variables"
// @Success      200   {object}  services.RenderedEmail
// @Router       /email-templates/{id}/preview [post]
func (h *TemplateHandler) Preview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var data *services.TemplateData
	if c.Request.ContentLength != 0 {
		data = &services.TemplateData{}
		if err := c.ShouldBindJSON(data); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	out, err := h.service.Preview(c.Request.Context(), id, data)
	if err != nil {
		writeError(c, h.log, "[templates][preview]", err)
		return
	}
	c.JSON(http.StatusOK, out)
}
