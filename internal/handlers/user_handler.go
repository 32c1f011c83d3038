package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type UserHandler struct {
	service services.UserService
	log     *zap.Logger
}

func NewUserHandler(service services.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{service: service, log: log}
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name"`
	Password string `json:"password" binding:"required,min=8"`
	RoleID   int64  `json:"role_id"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	RoleID   *int64  `json:"role_id"`
}

// only admins hand out the admin role
func canGrantRole(c *gin.Context, roleID int64) bool {
	if roleID == authz.RoleAdmin && currentActor(c).RoleID != authz.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins can grant the admin role"})
		return false
	}
	return true
}

// POST /users
// @Summary      Create user
// @Description  Without role_id the user gets the Sales role.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        user  body      createUserRequest  true  "User"
// @Success      201   {object}  models.User
// @Failure      409   {object}  map[string]string
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !canGrantRole(c, req.RoleID) {
		return
	}
	user := models.User{
		Email:    req.Email,
		FullName: strings.TrimSpace(req.FullName),
		RoleID:   req.RoleID,
	}
	if err := h.service.CreateUserWithPassword(c.Request.Context(), &user, req.Password); err != nil {
		writeError(c, h.log, "[users][create]", err)
		return
	}
	respond(c, h.log, http.StatusCreated, authz.EntityUser, &user)
}

// GET /users
// @Summary  List users
// @Tags     Users
// @Produce  json
// @Param    page  query    int  false  "Page"
// @Param    size  query    int  false  "Page size"
// @Success  200   {array}  models.User
// @Router   /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	limit, offset := pagination(c)
	users, err := h.service.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, h.log, "[users][list]", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityUser, users)
}

// GET /users/:id
// @Summary  Get user
// @Tags     Users
// @Produce  json
// @Param    id   path      int  true  "User ID"
// @Success  200  {object}  models.User
// @Router   /users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !canAccess(c, authz.EntityUser, authz.ActionView, id) {
		return
	}
	user, err := h.service.GetUserByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[users][get]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityUser, user)
}

// PUT /users/:id
// @Summary  Update user
// @Tags     Users
// @Accept   json
// @Produce  json
// @Param    id    path      int                true  "User ID"
// @Param    user  body      updateUserRequest  true  "Fields to change"
// @Success  200   {object}  models.User
// @Router   /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !canAccess(c, authz.EntityUser, authz.ActionEdit, id) {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := h.service.GetUserByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[users][update]", err)
		return
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.RoleID != nil && *req.RoleID != user.RoleID {
		if !canGrantRole(c, *req.RoleID) {
			return
		}
		h.log.Info("[users][update] role change",
			zap.Int64("user_id", id), zap.Int64("from", user.RoleID), zap.Int64("to", *req.RoleID),
			zap.Int64("by", currentActor(c).UserID))
		user.RoleID = *req.RoleID
	}
	if err := h.service.UpdateUser(ctx, user); err != nil {
		writeError(c, h.log, "[users][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityUser, user)
}

// DELETE /users/:id
// @Summary  Delete user
// @Tags     Users
// @Param    id  path  int  true  "User ID"
// @Success  204
// @Router   /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor := currentActor(c)
	if err := h.service.DeleteUser(c.Request.Context(), actor.UserID, id); err != nil {
		writeError(c, h.log, "[users][delete]", err)
		return
	}
	h.log.Info("[users][delete] ok", zap.Int64("user_id", id), zap.Int64("by", actor.UserID))
	c.Status(http.StatusNoContent)
}

// GET /users/count/role/:role_id
// @Summary  Count users with a role
// @Tags     Users
// @Produce  json
// @Param    role_id  path      int  true  "Role ID"
// @Success  200      {object}  map[string]int
// @Router   /users/count/role/{role_id} [get]
func (h *UserHandler) GetUserCountByRole(c *gin.Context) {
	roleID, ok := parseID(c, "role_id")
	if !ok {
		return
	}
	n, err := h.service.GetUserCountByRole(c.Request.Context(), roleID)
	if err != nil {
		writeError(c, h.log, "[users][count]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
