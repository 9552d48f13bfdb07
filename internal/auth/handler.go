package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/middleware"
	"github.com/pollpulse/backend/pkg/response"
	"github.com/pollpulse/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo       *Repository
	jwtService *JWTService
	logger     *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwtService *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwtService: jwtService, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}

	u, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, "email already registered")
			return
		}
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, u.ToPublic())
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	u, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !utils.CheckPassword(req.Password, u.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwtService.Generate(u.ID, u.Email)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to login")
		return
	}
	response.OK(c, gin.H{"token": token, "user": u.ToPublic()})
}

// Profile handles GET /auth/profile.
func (h *Handler) Profile(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	u, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, u.ToPublic())
}
