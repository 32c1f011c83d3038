package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

func TestLogin(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("Login", mock.Anything, "ada@example.com", "correct horse").Return(&services.TokenPair{
		AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900,
		User: &models.User{ID: 7, TenantID: testTenant, Email: "ada@example.com", RoleID: authz.RoleSales},
	}, nil)
	auth.On("Login", mock.Anything, "ada@example.com", "wrong").Return(nil, fmt.Errorf("check password: %w", models.ErrUnauthorized))

	h := NewAuthHandler(auth, nil, nil, zap.NewNop())
	r := newEngine()
	r.POST("/login", h.Login)

	w := doJSON(t, r, http.MethodPost, "/login", `{"email":"ada@example.com","password":"correct horse"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	pair := decode[services.TokenPair](t, w)
	assert.Equal(t, "access", pair.AccessToken)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = doJSON(t, r, http.MethodPost, "/login", `{"email":"ada@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid email or password"}`, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/login", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForgotPassword_SameAnswerForUnknownEmail(t *testing.T) {
	resets := new(MockPasswordResetService)
	resets.On("RequestReset", mock.Anything, mock.Anything).Return(nil)

	h := NewAuthHandler(nil, nil, resets, zap.NewNop())
	r := newEngine()
	r.POST("/password/forgot", h.ForgotPassword)

	known := doJSON(t, r, http.MethodPost, "/password/forgot", `{"email":"ada@example.com"}`)
	unknown := doJSON(t, r, http.MethodPost, "/password/forgot", `{"email":"nobody@example.com"}`)

	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestCreateUser_OnlyAdminGrantsAdmin(t *testing.T) {
	users := new(MockUserService)
	users.On("CreateUserWithPassword", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.RoleID == authz.RoleAdmin
	}), "s3cret-pass").Return(nil)

	h := NewUserHandler(users, zap.NewNop())
	body := `{"email":"new@example.com","full_name":" New Admin ","password":"s3cret-pass","role_id":50}`

	r := newEngine()
	r.POST("/users", actorAs(1, authz.RoleManagement), perm(authz.EntityUser, authz.ActionCreate), h.CreateUser)
	w := doJSON(t, r, http.MethodPost, "/users", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	users.AssertNotCalled(t, "CreateUserWithPassword", mock.Anything, mock.Anything, mock.Anything)

	r = newEngine()
	r.POST("/users", actorAs(1, authz.RoleAdmin), perm(authz.EntityUser, authz.ActionCreate), h.CreateUser)
	w = doJSON(t, r, http.MethodPost, "/users", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	users.AssertExpectations(t)
}
