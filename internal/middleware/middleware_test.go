package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/auth"
	"github.com/aura-live/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 1)
	user := &models.User{ID: uuid.New(), Email: "host@example.com", DisplayName: "Host", Role: models.RoleCreator}
	token, err := jwtService.Generate(user)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWT(jwtService), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":   c.MustGet(ContextUserID).(uuid.UUID).String(),
			"role": c.GetString(ContextUserRole),
			"name": c.GetString(ContextUserName),
		})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), user.ID.String())
				assert.Contains(t, w.Body.String(), `"role":"creator"`)
				assert.Contains(t, w.Body.String(), `"name":"Host"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserRole, role)
			}
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	tests := []struct {
		name string
		role string
		want int
	}{
		{"no claims", "", http.StatusUnauthorized},
		{"viewer", string(models.RoleViewer), http.StatusForbidden},
		{"creator", string(models.RoleCreator), http.StatusForbidden},
		{"admin", string(models.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin", withRole(tt.role), RequireRole(models.RoleAdmin), ok)
			w := serve(r, httptest.NewRequest(http.MethodGet, "/admin", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(ParseOrigins("http://localhost:3000, https://aura.live")))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://aura.live")
	w := serve(r, req)
	assert.Equal(t, "https://aura.live", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOriginsAllows(t *testing.T) {
	assert.True(t, ParseOrigins("").Allows("https://anything.example"))
	assert.True(t, ParseOrigins("*").Allows("https://anything.example"))
	assert.True(t, ParseOrigins("http://a.test, http://b.test").Allows("http://b.test"))
	assert.False(t, ParseOrigins("http://a.test,http://b.test").Allows("http://c.test"))
}

func TestCORSWildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORS(ParseOrigins("*")))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := serve(r, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Vary"))
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
	_, ok = bearerToken("Token abc")
	assert.False(t, ok)
	_, ok = bearerToken("abc")
	assert.False(t, ok)
}

func TestRequirePredicate(t *testing.T) {
	r := gin.New()
	r.GET("/studio", func(c *gin.Context) {
		c.Set(ContextUserRole, c.Query("role"))
		c.Next()
	}, Require(models.Role.CanBroadcast), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/studio?role=creator", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, httptest.NewRequest(http.MethodGet, "/studio?role=viewer", nil)).Code)
}
