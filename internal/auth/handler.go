package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
	"github.com/aura-live/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role"` // viewer or creator, defaults to viewer
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// StreamEnder ends a user's running live stream.
type StreamEnder interface {
	EndForBroadcaster(ctx context.Context, userID uuid.UUID) error
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   Users
	jwt    *JWTService
	ender  StreamEnder
	logger *zap.Logger
}

// NewHandler creates an auth handler. ender may be nil.
func NewHandler(repo Users, jwt *JWTService, ender StreamEnder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, ender: ender, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleViewer
	switch req.Role {
	case "", string(models.RoleViewer):
	case string(models.RoleCreator):
		role = models.RoleCreator
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	email := utils.NormalizeEmail(req.Email)
	_, err := h.repo.GetByEmail(c.Request.Context(), email)
	if err == nil {
		response.Conflict(c, "email already registered")
		return
	}
	if !errors.Is(err, ErrUserNotFound) {
		h.logger.Error("lookup user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), email, hash, strings.TrimSpace(req.DisplayName), role)
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), utils.NormalizeEmail(req.Email))
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	v, _ := c.Get(ContextUserID)
	userID, _ := v.(uuid.UUID)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("load user", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, user.ToPublic())
}

// Logout handles POST /auth/logout. A broadcaster who is live has the stream ended first;
// if that fails the logout is refused so the client can retry.
func (h *Handler) Logout(c *gin.Context) {
	v, ok := c.Get(ContextUserID)
	userID, _ := v.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	if h.ender != nil {
		if err := h.ender.EndForBroadcaster(c.Request.Context(), userID); err != nil {
			h.logger.Warn("end stream on logout", zap.String("user_id", userID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "could not end your live stream, please try again")
			return
		}
	}
	response.OK(c, gin.H{"logged_out": true})
}
