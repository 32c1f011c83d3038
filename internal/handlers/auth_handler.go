package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type AuthHandler struct {
	authService  services.AuthService
	userService  services.UserService
	resetService services.PasswordResetService
	log          *zap.Logger
}

func NewAuthHandler(authService services.AuthService, userService services.UserService, resetService services.PasswordResetService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, resetService: resetService, log: log}
}

// @Summary      Sign up
// @Description  Creates a tenant, its first user with the Admin role and a default pipeline.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        signup  body      models.SignupRequest  true  "Company and first user"
// @Success      201     {object}  services.TokenPair
// @Failure      409     {object}  map[string]string
// @Router       /signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.authService.Signup(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, "[auth][signup]", err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

// @Summary      Log in
// @Description  Returns a short-lived access token and an opaque refresh token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Credentials"
// @Success      200    {object}  services.TokenPair
// @Failure      401    {object}  map[string]string
// @Router       /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		writeError(c, h.log, "[auth][login]", err)
		return
	}
	h.log.Info("[auth][login] ok",
		zap.Int64("user_id", pair.User.ID), zap.Int64("tenant_id", pair.User.TenantID), zap.Duration("took", time.Since(start)))
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary      Refresh tokens
// @Description  The refresh token is rotated; the old one stops working.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  services.TokenPair
// @Failure      401   {object}  map[string]string
// @Router       /refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.log, "[auth][refresh]", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Request a password reset
// @Description  Always answers 202 so the endpoint does not reveal which emails exist.
// @Tags         Auth
// @Accept       json
// @Param        body  body  forgotPasswordRequest  true  "Email"
// @Success      202
// @Router       /password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.resetService.RequestReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.log, "[auth][forgot]", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "if the email exists, a reset link was sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// @Summary  Reset password with an emailed token
// @Tags     Auth
// @Accept   json
// @Param    body  body  resetPasswordRequest  true  "Token and new password"
// @Success  204
// @Failure  400  {object}  map[string]string
// @Router   /password/reset [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.resetService.ResetPassword(c.Request.Context(), strings.TrimSpace(req.Token), req.Password); err != nil {
		writeError(c, h.log, "[auth][reset]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary  Current user
// @Tags     Auth
// @Produce  json
// @Success  200  {object}  map[string]interface{}
// @Router   /me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor := currentActor(c)
	user, err := h.userService.GetUserByID(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, h.log, "[auth][me]", err)
		return
	}
	resp := gin.H{"user": user}
	if role, ok := authz.BuiltinRole(user.RoleID); ok {
		resp["role"] = role.Name
	}
	c.JSON(http.StatusOK, resp)
}
