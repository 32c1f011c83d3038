package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/tenant"
	"crmhub/internal/utils"
)

var secret = []byte("middleware-test")

func token(t *testing.T, roleID int64, ttl time.Duration) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, utils.Claims{UserID: 7, TenantID: 3, RoleID: roleID}, ttl, time.Now())
	require.NoError(t, err)
	return tok
}

type noRoles struct{}

func (noRoles) GetRole(context.Context, int64, int64) (*authz.Role, error) {
	return nil, errors.New("no such role")
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	final := func(c *gin.Context) {
		tid, _ := tenant.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"tenant_id": tid, "user_id": c.GetInt64("user_id")})
	}
	r.GET("/healthz", final)
	r.GET("/contacts", append(handlers, final)...)
	return r
}

func do(r http.Handler, path, auth string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusOK, do(r, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/contacts", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/contacts", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/contacts", "Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/contacts", "Bearer "+token(t, authz.RoleSales, -time.Hour)).Code)

	w := do(r, "/contacts", "Bearer "+token(t, authz.RoleSales, time.Minute))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant_id":3,"user_id":7}`, w.Body.String())
}

func TestAuthMiddleware_WebSocketQueryToken(t *testing.T) {
	r := newRouter()
	tok := token(t, authz.RoleSales, time.Minute)

	assert.Equal(t, http.StatusOK, do(r, "/contacts?access_token="+tok, "", "Upgrade", "websocket").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/contacts?access_token="+tok, "").Code)
}

func TestRequirePermission(t *testing.T) {
	cache := authz.NewPolicyCache(noRoles{}, time.Minute)
	var seen *authz.Policy
	capture := func(c *gin.Context) {
		seen = PolicyFrom(c)
		c.Next()
	}

	view := newRouter(RequirePermission(cache, zap.NewNop(), authz.EntityContact, authz.ActionView), capture)
	del := newRouter(RequirePermission(cache, zap.NewNop(), authz.EntityRole, authz.ActionDelete))

	assert.Equal(t, http.StatusOK, do(view, "/contacts", "Bearer "+token(t, authz.RoleAudit, time.Minute)).Code)
	require.NotNil(t, seen)
	assert.Equal(t, authz.ScopeAll, seen.Scope(authz.EntityContact, authz.ActionView))

	assert.Equal(t, http.StatusForbidden, do(del, "/contacts", "Bearer "+token(t, authz.RoleManagement, time.Minute)).Code)
	assert.Equal(t, http.StatusOK, do(del, "/contacts", "Bearer "+token(t, authz.RoleAdmin, time.Minute)).Code)
	// unknown custom role
	assert.Equal(t, http.StatusForbidden, do(view, "/contacts", "Bearer "+token(t, 1234, time.Minute)).Code)
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(RequireRoles(authz.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, do(r, "/contacts", "Bearer "+token(t, authz.RoleSales, time.Minute)).Code)
	assert.Equal(t, http.StatusOK, do(r, "/contacts", "Bearer "+token(t, authz.RoleAdmin, time.Minute)).Code)
}

func TestPolicyFrom_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, PolicyFrom(c))
}
