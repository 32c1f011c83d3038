package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type CompanyHandler struct {
	service services.CompanyService
	log     *zap.Logger
}

func NewCompanyHandler(service services.CompanyService, log *zap.Logger) *CompanyHandler {
	return &CompanyHandler{service: service, log: log}
}

// @Summary  Create company
// @Tags     Companies
// @Accept   json
// @Produce  json
// @Param    company  body      models.Company  true  "Company"
// @Success  201      {object}  models.Company
// @Router   /companies [post]
func (h *CompanyHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var company models.Company
	if err := decodeBody(c, authz.EntityCompany, &company); err != nil {
		writeError(c, h.log, "[companies][create]", err)
		return
	}
	company.ID = 0
	if company.OwnerID == 0 {
		company.OwnerID = actor.UserID
	}
	if !canAccess(c, authz.EntityCompany, authz.ActionCreate, company.OwnerID) {
		return
	}
	if err := h.service.Create(c.Request.Context(), &company); err != nil {
		writeError(c, h.log, "[companies][create]", err)
		return
	}
	h.log.Info("[companies][create] ok", zap.Int64("company_id", company.ID), zap.Int64("user_id", actor.UserID))
	respond(c, h.log, http.StatusCreated, authz.EntityCompany, &company)
}

// @Summary  Get company
// @Tags     Companies
// @Produce  json
// @Param    id   path      int  true  "Company ID"
// @Success  200  {object}  models.Company
// @Router   /companies/{id} [get]
func (h *CompanyHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	company, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[companies][get]", err)
		return
	}
	if !canAccess(c, authz.EntityCompany, authz.ActionView, company.OwnerID) {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityCompany, company)
}

// @Summary  List companies
// @Tags     Companies
// @Produce  json
// @Param    q         query    string  false  "Search in name and domain"
// @Param    owner_id  query    int     false  "Owner"
// @Param    page      query    int     false  "Page"
// @Param    size      query    int     false  "Page size"
// @Success  200       {array}  models.Company
// @Router   /companies [get]
func (h *CompanyHandler) List(c *gin.Context) {
	f := models.CompanyFilter{Query: strings.TrimSpace(c.Query("q"))}
	f.Limit, f.Offset = pagination(c)
	var err error
	if f.OwnerID, err = optionalID(c, "owner_id"); err != nil {
		writeError(c, h.log, "[companies][list]", err)
		return
	}
	if own := middleware.PolicyFrom(c).OwnerFilter(authz.EntityCompany, authz.ActionView, currentActor(c).UserID); own != nil {
		f.OwnerID = own
	}
	companies, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[companies][list]", err)
		return
	}
	if companies == nil {
		companies = []*models.Company{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityCompany, companies)
}

// @Summary  Update company
// @Tags     Companies
// @Accept   json
// @Produce  json
// @Param    id       path      int             true  "Company ID"
// @Param    company  body      models.Company  true  "Fields to change"
// @Success  200      {object}  models.Company
// @Router   /companies/{id} [put]
func (h *CompanyHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	company, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[companies][update]", err)
		return
	}
	if !canAccess(c, authz.EntityCompany, authz.ActionEdit, company.OwnerID) {
		return
	}
	if err := decodeBody(c, authz.EntityCompany, company); err != nil {
		writeError(c, h.log, "[companies][update]", err)
		return
	}
	company.ID = id
	if !canAccess(c, authz.EntityCompany, authz.ActionEdit, company.OwnerID) {
		return
	}
	if err := h.service.Update(ctx, company); err != nil {
		writeError(c, h.log, "[companies][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityCompany, company)
}

// @Summary  Delete company
// @Tags     Companies
// @Param    id  path  int  true  "Company ID"
// @Success  204
// @Router   /companies/{id} [delete]
func (h *CompanyHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	company, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[companies][delete]", err)
		return
	}
	if !canAccess(c, authz.EntityCompany, authz.ActionDelete, company.OwnerID) {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeError(c, h.log, "[companies][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
