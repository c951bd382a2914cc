package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is the browser origin allowlist shared by CORS and the WebSocket upgrader.
// An empty set or "*" allows every origin.
type Origins map[string]bool

// ParseOrigins reads a comma-separated list (e.g. "http://localhost:3000,https://aura.live").
func ParseOrigins(s string) Origins {
	o := make(Origins)
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			o[v] = true
		}
	}
	return o
}

func (o Origins) any() bool { return len(o) == 0 || o["*"] }

// Allows reports whether origin may call the API or open a WebSocket.
func (o Origins) Allows(origin string) bool {
	return o.any() || o[origin]
}

// CORS sets CORS headers for the web player and studio and answers preflight requests.
func CORS(origins Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		switch {
		case origins.any():
			allowOrigin = "*"
		case origin != "" && origins[origin]:
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
