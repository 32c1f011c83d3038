package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crmhub/internal/authz"
	"crmhub/internal/utils"
)

const tokenLeeway = 2 * time.Minute

// endpoints reachable without a token
func isPublicPath(path string) bool {
	switch path {
	case "/login", "/signup", "/refresh", "/healthz":
		return true
	}
	return strings.HasPrefix(path, "/password/") ||
		strings.HasPrefix(path, "/webhooks/") ||
		strings.HasPrefix(path, "/swagger")
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a WebSocket handshake, so GET upgrades may pass access_token instead.
func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if c.Request.Method == http.MethodGet && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("access_token")
	}
	return ""
}

// AuthMiddleware validates the access token and binds the actor (and with
// it the tenant) to the request context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := utils.ParseAccessToken(secret, raw, tokenLeeway)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		actor := authz.Actor{UserID: claims.UserID, TenantID: claims.TenantID, RoleID: claims.RoleID}
		c.Request = c.Request.WithContext(authz.WithActor(c.Request.Context(), actor))
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("role_id", claims.RoleID)

		c.Next()
	}
}
