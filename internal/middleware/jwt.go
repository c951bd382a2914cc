package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-live/backend/internal/auth"
	"github.com/aura-live/backend/pkg/response"
)

// Gin context keys set from token claims.
const (
	ContextUserID    = auth.ContextUserID
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
	ContextUserName  = "user_name"
)

// bearerToken extracts the token from "Authorization: Bearer <token>"; the scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWT validates the bearer token and copies its claims into the gin context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// setClaims copies token claims into the gin context.
func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUserRole, claims.Role)
	c.Set(ContextUserEmail, claims.Email)
	c.Set(ContextUserName, claims.DisplayName)
}
