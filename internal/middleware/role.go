package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
)

// Require allows the request through when allow accepts the caller's role. Run it after JWT.
func Require(allow func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := v.(string)
		if !allow(models.Role(role)) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole allows only the listed roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return Require(func(r models.Role) bool { return allowed[r] })
}
