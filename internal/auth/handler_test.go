package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/auth"
	"github.com/aura-live/backend/internal/storage/memory"
)

type ender struct {
	calls []uuid.UUID
	err   error
}

func (e *ender) EndForBroadcaster(_ context.Context, userID uuid.UUID) error {
	e.calls = append(e.calls, userID)
	return e.err
}

type tokenEnvelope struct {
	Success bool               `json:"success"`
	Data    auth.TokenResponse `json:"data"`
	Error   string             `json:"error"`
}

func router(h *auth.Handler, jwt *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	authed := r.Group("", func(c *gin.Context) {
		claims, err := jwt.Validate(c.GetHeader("X-Token"))
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(auth.ContextUserID, claims.UserID)
	})
	authed.GET("/auth/me", h.Me)
	authed.POST("/auth/logout", h.Logout)
	return r
}

func post(t *testing.T, r http.Handler, path string, body interface{}, token string) (*httptest.ResponseRecorder, tokenEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token", token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env tokenEnvelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRegisterLoginLogout(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	e := &ender{}
	r := router(auth.NewHandler(memory.NewUsers(), jwt, e, nil), jwt)

	w, env := post(t, r, "/auth/register", map[string]string{
		"email": "ana@example.com", "password": "hunter22", "display_name": "Ana", "role": "creator",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "creator", string(env.Data.User.Role))

	w, _ = post(t, r, "/auth/register", map[string]string{
		"email": "ANA@example.com", "password": "hunter22", "display_name": "Ana",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = post(t, r, "/auth/login", map[string]string{"email": "ana@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = post(t, r, "/auth/login", map[string]string{"email": "ana@example.com", "password": "hunter22"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := env.Data.Token
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("X-Token", token)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)

	w, _ = post(t, r, "/auth/logout", map[string]string{}, token)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, e.calls, 1)
	assert.Equal(t, env.Data.User.ID, e.calls[0])
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	r := router(auth.NewHandler(memory.NewUsers(), jwt, nil, nil), jwt)
	w, _ := post(t, r, "/auth/register", map[string]string{
		"email": "x@example.com", "password": "hunter22", "display_name": "X", "role": "admin",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutRefusedWhenStreamCannotEnd(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	users := memory.NewUsers()
	e := &ender{err: errors.New("store down")}
	r := router(auth.NewHandler(users, jwt, e, nil), jwt)

	u, err := users.Create(context.Background(), "b@example.com", "x", "B", "creator")
	require.NoError(t, err)
	token, err := jwt.Generate(u)
	require.NoError(t, err)

	w, _ := post(t, r, "/auth/logout", map[string]string{}, token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
