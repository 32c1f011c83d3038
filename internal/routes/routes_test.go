package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/utils"
)

var secret = []byte("routes-test")

// Requests below are rejected by middleware before any handler runs, so
// the handler set can stay empty.
func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRoutes(gin.New(), Handlers{}, secret, authz.NewPolicyCache(nil, 0), zap.NewNop())
}

func bearer(t *testing.T, roleID int64) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, utils.Claims{UserID: 7, TenantID: 3, RoleID: roleID}, time.Minute, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestProtectedRoutes(t *testing.T) {
	r := newRouter()
	tests := []struct {
		name   string
		method string
		path   string
		role   int64
		want   int
	}{
		{"no token", http.MethodGet, "/contacts", 0, http.StatusUnauthorized},
		{"audit cannot create contacts", http.MethodPost, "/contacts", authz.RoleAudit, http.StatusForbidden},
		{"audit cannot move deals", http.MethodPost, "/deals/1/move", authz.RoleAudit, http.StatusForbidden},
		{"sales cannot delete users", http.MethodDelete, "/users/5", authz.RoleSales, http.StatusForbidden},
		{"sales cannot manage roles", http.MethodPost, "/roles", authz.RoleSales, http.StatusForbidden},
		{"sales cannot send campaigns", http.MethodPost, "/campaigns/1/send", authz.RoleSales, http.StatusForbidden},
		{"sales cannot edit scoring models", http.MethodPut, "/scoring-models/1", authz.RoleSales, http.StatusForbidden},
		{"management cannot run cleanup", http.MethodPost, "/admin/maintenance/cleanup", authz.RoleManagement, http.StatusForbidden},
		{"management cannot delete roles", http.MethodDelete, "/roles/1000", authz.RoleManagement, http.StatusForbidden},
		{"operations cannot create users", http.MethodPost, "/users", authz.RoleOperations, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.role != 0 {
				req.Header.Set("Authorization", bearer(t, tt.role))
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.Header.Set("Authorization", bearer(t, authz.RoleAdmin))
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
