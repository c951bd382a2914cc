package live_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/middleware"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func routerAs(h *live.Handler, p live.Participant) *gin.Engine {
	r := gin.New()
	g := r.Group("/", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, p.ID)
		c.Set(middleware.ContextUserRole, string(p.Role))
		c.Set(middleware.ContextUserName, p.DisplayName)
		c.Next()
	})
	h.Register(g)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHandlerStreamLifecycle(t *testing.T) {
	f := newFixture()
	svc := newService(f)
	defer svc.Shutdown(context.Background())
	h := live.NewHandler(svc, nil)
	asHost := routerAs(h, host)
	alice := viewer("alice")
	asAlice := routerAs(h, alice)

	w, env := do(t, asHost, http.MethodPost, "/live", gin.H{"title": "Game Night", "privacy": "public"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var s models.StreamSession
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.True(t, s.ChatEnabled)
	assert.Equal(t, models.StreamStatusLive, s.Status)
	base := "/live/" + s.ID.String()

	w, _ = do(t, asAlice, http.MethodPost, base+"/join", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, asAlice, http.MethodPost, base+"/chat", gin.H{"text": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "alice", msg.AuthorDisplayName)

	w, _ = do(t, asAlice, http.MethodPost, base+"/chat", gin.H{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, asAlice, http.MethodPost, base+"/timeouts", gin.H{"user_id": host.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, asHost, http.MethodPost, base+"/timeouts", gin.H{"user_id": alice.ID, "minutes": 10})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, asAlice, http.MethodPost, base+"/chat", gin.H{"text": "why"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w, env = do(t, asAlice, http.MethodGet, base+"/viewers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "alice")

	w, _ = do(t, asAlice, http.MethodPost, base+"/end", gin.H{"confirm": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, asHost, http.MethodPost, base+"/end", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, asHost, http.MethodPost, base+"/end", gin.H{"confirm": true})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var out struct {
		Summary models.StreamSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.Summary.ChatMessageCount)
	assert.Equal(t, 1, out.Summary.TotalViewers)
	assert.Equal(t, "0.00", out.Summary.TotalTips)

	w, _ = do(t, asAlice, http.MethodPost, base+"/join", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, asAlice, http.MethodGet, "/live/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page live.HistoryPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Streams, 1)
	assert.Equal(t, s.ID, page.Streams[0].ID)
}

func TestHandlerStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		body   gin.H
		status int
		code   string
	}{
		{"missing title", nil, gin.H{"title": ""}, http.StatusBadRequest, response.CodeValidation},
		{"permission denied", func(f *fixture) {
			f.capture.Fail("acquire", live.PermissionDenied(errors.New("denied")))
		}, gin.H{"title": "x"}, http.StatusForbidden, response.CodePermissionDenied},
		{"device error", func(f *fixture) {
			f.capture.Fail("acquire", errors.New("busy"))
		}, gin.H{"title": "x"}, http.StatusServiceUnavailable, response.CodeDevice},
		{"store down", func(f *fixture) {
			f.store.Fail("create", errors.New("down"))
		}, gin.H{"title": "x"}, http.StatusServiceUnavailable, response.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			svc := newService(f)
			defer svc.Shutdown(context.Background())
			w, env := do(t, routerAs(live.NewHandler(svc, nil), host), http.MethodPost, "/live", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestHandlerRejectsBadIDs(t *testing.T) {
	f := newFixture()
	r := routerAs(live.NewHandler(newService(f), nil), host)

	w, _ := do(t, r, http.MethodGet, "/live/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/live/history?before=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRunningListsActiveSessions(t *testing.T) {
	f := newFixture()
	svc := newService(f)
	defer svc.Shutdown(context.Background())
	h := live.NewHandler(svc, nil)

	r := gin.New()
	r.GET("/admin/live", h.Running)

	w, env := do(t, r, http.MethodGet, "/admin/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"streams":[]}`, string(env.Data))

	s, err := svc.GoLive(context.Background(), host, live.GoLiveRequest{Title: "Late set", ChatEnabled: true})
	require.NoError(t, err)

	w, env = do(t, r, http.MethodGet, "/admin/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Streams []models.StreamSession `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Streams, 1)
	assert.Equal(t, s.ID, out.Streams[0].ID)
}
