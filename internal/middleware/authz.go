package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
)

const policyKey = "policy"

// RequirePermission resolves the actor's policy and rejects the request
// when entity/action resolves to scope none. The policy is kept on the
// context for record and field checks in handlers.
func RequirePermission(cache *authz.PolicyCache, log *zap.Logger, entity authz.Entity, action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := authz.ActorFrom(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		p, err := cache.Policy(c.Request.Context(), actor.TenantID, actor.RoleID)
		if err != nil {
			log.Warn("[authz][policy] load failed",
				zap.Int64("tenant_id", actor.TenantID), zap.Int64("role_id", actor.RoleID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if !p.Allows(entity, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set(policyKey, p)
		c.Next()
	}
}

// PolicyFrom returns the policy stored by RequirePermission. Without one
// every check resolves to none.
func PolicyFrom(c *gin.Context) *authz.Policy {
	if v, ok := c.Get(policyKey); ok {
		if p, ok := v.(*authz.Policy); ok {
			return p
		}
	}
	return nil
}

// RequireRoles admits only the listed role ids.
func RequireRoles(allowed ...int64) gin.HandlerFunc {
	allowedSet := make(map[int64]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := authz.ActorFrom(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if _, ok := allowedSet[actor.RoleID]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
