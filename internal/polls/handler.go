package polls

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/middleware"
	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/pkg/response"
)

// OptionRequest is a single option in a poll creation request.
type OptionRequest struct {
	Text       string `json:"text" binding:"required"`
	OrderIndex int    `json:"order_index"`
}

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description string          `json:"description"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	Options     []OptionRequest `json:"options" binding:"required,min=2,dive"`
}

// UpdateRequest is the body for PATCH /polls/:id.
type UpdateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	IsActive    *bool      `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// Store persists polls. Satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, p *models.Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	List(ctx context.Context, isActive *bool) ([]models.Poll, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler handles poll CRUD endpoints.
type Handler struct {
	repo   Store
	gate   *Gate
	logger *zap.Logger
}

// NewHandler creates a polls handler.
func NewHandler(repo Store, gate *Gate, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, gate: gate, logger: logger}
}

// Create handles POST /polls (authenticated).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := validateCreate(req, h.gate.Now()); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	p := &models.Poll{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   &userID,
		ExpiresAt:   req.ExpiresAt,
	}
	for _, o := range req.Options {
		p.Options = append(p.Options, models.Option{Text: o.Text, OrderIndex: o.OrderIndex})
	}

	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		h.logger.Error("create poll", zap.Error(err))
		response.Internal(c, "failed to create poll")
		return
	}
	response.Created(c, p)
}

// List handles GET /polls (public). ?is_active=true|false filters.
func (h *Handler) List(c *gin.Context) {
	var isActive *bool
	if v, ok := c.GetQuery("is_active"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "is_active must be true or false")
			return
		}
		isActive = &b
	}
	list, err := h.repo.List(c.Request.Context(), isActive)
	if err != nil {
		h.logger.Error("list polls", zap.Error(err))
		response.Internal(c, "failed to list polls")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /polls/:id (public).
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "poll not found")
			return
		}
		h.logger.Error("get poll", zap.Error(err))
		response.Internal(c, "failed to load poll")
		return
	}
	response.OK(c, p)
}

// Update handles PATCH /polls/:id (owner only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(h.gate.Now()) {
		response.BadRequest(c, "expiry date must be in the future")
		return
	}

	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "poll not found")
			return
		}
		h.logger.Error("get poll", zap.Error(err))
		response.Internal(c, "failed to load poll")
		return
	}
	if !h.isOwner(c, p) {
		response.Forbidden(c, "only the poll owner can modify it")
		return
	}

	params := UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	}
	if err := h.repo.Update(c.Request.Context(), id, params); err != nil {
		h.logger.Error("update poll", zap.Error(err))
		response.Internal(c, "failed to update poll")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("reload poll", zap.Error(err))
		response.Internal(c, "failed to load poll")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /polls/:id (owner only). Options and votes cascade.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "poll not found")
			return
		}
		h.logger.Error("get poll", zap.Error(err))
		response.Internal(c, "failed to load poll")
		return
	}
	if !h.isOwner(c, p) {
		response.Forbidden(c, "only the poll owner can delete it")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete poll", zap.Error(err))
		response.Internal(c, "failed to delete poll")
		return
	}
	response.NoContent(c)
}

func (h *Handler) isOwner(c *gin.Context, p *models.Poll) bool {
	userID, ok := middleware.UserID(c)
	if !ok || p.CreatedBy == nil {
		return false
	}
	return *p.CreatedBy == userID
}

// validateCreate checks the invariants not expressible as binding tags:
// future expiry and unique option order indices.
func validateCreate(req CreateRequest, now time.Time) error {
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return errors.New("expiry date must be in the future")
	}
	seen := make(map[int]struct{}, len(req.Options))
	for _, o := range req.Options {
		if _, dup := seen[o.OrderIndex]; dup {
			return fmt.Errorf("duplicate option order index %d", o.OrderIndex)
		}
		seen[o.OrderIndex] = struct{}{}
	}
	return nil
}
