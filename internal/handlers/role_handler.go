package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/services"
)

type RoleHandler struct {
	service services.RoleService
	log     *zap.Logger
}

func NewRoleHandler(service services.RoleService, log *zap.Logger) *RoleHandler {
	return &RoleHandler{service: service, log: log}
}

// POST /roles
// @Summary      Create custom role
// @Description  Grants are (entity|*, action|*, none|own|all); field rules are edit|view|mask|hidden.
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param        role  body      authz.Role  true  "Role"
// @Success      201   {object}  authz.Role
// @Router       /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var role authz.Role
	if err := c.ShouldBindJSON(&role); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.service.Create(c.Request.Context(), &role); err != nil {
		writeError(c, h.log, "[roles][create]", err)
		return
	}
	h.log.Info("[roles][create] ok", zap.Int64("role_id", role.ID), zap.String("name", role.Name))
	c.JSON(http.StatusCreated, role)
}

// GET /roles
// @Summary      List roles
// @Description  Built-in roles first, then the tenant's custom roles.
// @Tags         Roles
// @Produce      json
// @Success      200  {array}  authz.Role
// @Router       /roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, "[roles][list]", err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

// GET /roles/:id
// @Summary  Get role
// @Tags     Roles
// @Produce  json
// @Param    id   path      int  true  "Role ID"
// @Success  200  {object}  authz.Role
// @Router   /roles/{id} [get]
func (h *RoleHandler) GetRoleByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	role, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[roles][get]", err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// PUT /roles/:id
// @Summary      Update custom role
// @Description  Built-in roles are read-only. Cached policies of the role are dropped.
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param        id    path      int         true  "Role ID"
// @Param        role  body      authz.Role  true  "Role"
// @Success      200   {object}  authz.Role
// @Failure      403   {object}  map[string]string
// @Router       /roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var role authz.Role
	if err := c.ShouldBindJSON(&role); err != nil {
		badRequest(c, err.Error())
		return
	}
	role.ID = id
	if err := h.service.Update(c.Request.Context(), &role); err != nil {
		writeError(c, h.log, "[roles][update]", err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DELETE /roles/:id
// @Summary  Delete custom role
// @Tags     Roles
// @Param    id  path  int  true  "Role ID"
// @Success  204
// @Failure  409  {object}  map[string]string
// @Router   /roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.log, "[roles][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
