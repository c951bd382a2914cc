package live

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/middleware"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
	"github.com/aura-live/backend/pkg/storage"
)

// StartRequest is the body for POST /live. Multipart requests may also carry a "thumbnail" file.
type StartRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Category    string `json:"category" form:"category"`
	Privacy     string `json:"privacy" form:"privacy"`
	ChatEnabled *bool  `json:"chat_enabled" form:"chat_enabled"`
	TipsEnabled *bool  `json:"tips_enabled" form:"tips_enabled"`
}

// EndRequest is the body for POST /live/:id/end.
type EndRequest struct {
	Confirm bool `json:"confirm"`
}

// ChatRequest is the body for POST /live/:id/chat.
type ChatRequest struct {
	Text string `json:"text"`
}

// TimeoutRequest is the body for POST /live/:id/timeouts.
type TimeoutRequest struct {
	UserID  uuid.UUID `json:"user_id" binding:"required"`
	Minutes int       `json:"minutes"`
}

// Handler exposes the live service over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a live handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the live routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/live", h.Start)
	rg.GET("/live", h.ListLive)
	rg.GET("/live/history", h.History)
	rg.GET("/live/:id", h.Get)
	rg.POST("/live/:id/end", h.End)
	rg.POST("/live/:id/join", h.Join)
	rg.POST("/live/:id/leave", h.Leave)
	rg.GET("/live/:id/viewers", h.Viewers)
	rg.GET("/live/:id/chat", h.ChatHistory)
	rg.POST("/live/:id/chat", h.SendChat)
	rg.DELETE("/live/:id/chat/:messageId", h.DeleteMessage)
	rg.POST("/live/:id/timeouts", h.TimeoutUser)
}

// ParticipantFromContext builds the caller identity set by the JWT middleware.
func ParticipantFromContext(c *gin.Context) Participant {
	p := Participant{}
	if v, ok := c.Get(middleware.ContextUserID); ok {
		p.ID, _ = v.(uuid.UUID)
	}
	if v, ok := c.Get(middleware.ContextUserRole); ok {
		role, _ := v.(string)
		p.Role = models.Role(role)
	}
	if v, ok := c.Get(middleware.ContextUserName); ok {
		p.DisplayName, _ = v.(string)
	}
	return p
}

// Start handles POST /live.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in := GoLiveRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Privacy:     models.PrivacyMode(req.Privacy),
		ChatEnabled: req.ChatEnabled == nil || *req.ChatEnabled,
		TipsEnabled: req.TipsEnabled == nil || *req.TipsEnabled,
	}
	if fh, err := c.FormFile("thumbnail"); err == nil {
		if !storage.ValidateImageType(fh.Header.Get("Content-Type"), fh.Filename) {
			response.BadRequest(c, "thumbnail must be a jpeg, png, webp or gif image")
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.BadRequest(c, "invalid thumbnail")
			return
		}
		defer f.Close()
		in.Thumbnail = &Thumbnail{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
			Size:        fh.Size,
		}
	}

	session, err := h.svc.GoLive(c.Request.Context(), ParticipantFromContext(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, session)
}

// End handles POST /live/:id/end. The client must confirm explicitly.
func (h *Handler) End(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req EndRequest
	_ = c.ShouldBindJSON(&req)
	if !req.Confirm {
		response.BadRequest(c, "ending a stream requires confirm=true")
		return
	}
	summary, err := h.svc.End(c.Request.Context(), ParticipantFromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"summary": summary})
}

// ListLive handles GET /live.
func (h *Handler) ListLive(c *gin.Context) {
	streams, err := h.svc.ListLive(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if streams == nil {
		streams = []models.StreamSession{}
	}
	response.OK(c, gin.H{"streams": streams})
}

// Running handles GET /admin/live: the sessions this instance is running.
func (h *Handler) Running(c *gin.Context) {
	controllers := h.svc.Registry().All()
	out := make([]models.StreamSession, 0, len(controllers))
	for _, ctrl := range controllers {
		if s := ctrl.Session(); s != nil {
			out = append(out, *s)
		}
	}
	response.OK(c, gin.H{"streams": out})
}

// History handles GET /live/history?before=<RFC3339>&limit=<n>.
func (h *Handler) History(c *gin.Context) {
	var before *time.Time
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			response.BadRequest(c, "before must be an RFC3339 timestamp")
			return
		}
		before = &t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.svc.History(c.Request.Context(), before, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, page)
}

// Get handles GET /live/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, session)
}

// Join handles POST /live/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.svc.Join(c.Request.Context(), id, ParticipantFromContext(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": id, "joined": true})
}

// Leave handles POST /live/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), id, ParticipantFromContext(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Viewers handles GET /live/:id/viewers.
func (h *Handler) Viewers(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"viewers": h.svc.Viewers(c.Request.Context(), id)})
}

// ChatHistory handles GET /live/:id/chat.
func (h *Handler) ChatHistory(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"messages": h.svc.ChatHistory(c.Request.Context(), id)})
}

// SendChat handles POST /live/:id/chat.
func (h *Handler) SendChat(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.svc.SendChat(c.Request.Context(), id, ParticipantFromContext(c), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, msg)
}

// DeleteMessage handles DELETE /live/:id/chat/:messageId.
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.BadRequest(c, "invalid message id")
		return
	}
	if err := h.svc.DeleteMessage(c.Request.Context(), id, ParticipantFromContext(c), messageID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// TimeoutUser handles POST /live/:id/timeouts.
func (h *Handler) TimeoutUser(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req TimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Minutes < 0 {
		response.BadRequest(c, "minutes must not be negative")
		return
	}
	d := time.Duration(req.Minutes) * time.Minute
	t, err := h.svc.TimeoutUser(c.Request.Context(), id, ParticipantFromContext(c), req.UserID, d)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, t)
}

func sessionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps an error kind to its HTTP status and response code.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		response.Error(c, http.StatusForbidden, response.CodePermissionDenied,
			"camera and microphone access was denied; allow access in your browser settings and try again")
	case errors.Is(err, ErrDevice):
		response.Error(c, http.StatusServiceUnavailable, response.CodeDevice,
			"no usable camera or microphone; check that your device is connected and not in use")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "stream not found or already ended")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrTimedOut):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, ErrInvalidState):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrTransient):
		h.logger.Warn("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, please try again")
	default:
		h.logger.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
