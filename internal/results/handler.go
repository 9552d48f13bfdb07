package results

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
	"github.com/pollpulse/backend/pkg/response"
)

// Computer computes a poll's results snapshot. Satisfied by *Aggregator.
type Computer interface {
	Compute(ctx context.Context, pollID uuid.UUID) (*models.PollResults, error)
}

// Handler handles the results endpoint.
type Handler struct {
	aggregator Computer
	logger     *zap.Logger
}

// NewHandler creates a results handler.
func NewHandler(aggregator Computer, logger *zap.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Get handles GET /polls/:id/results (public; works for closed and
// expired polls too).
func (h *Handler) Get(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}

	res, err := h.aggregator.Compute(c.Request.Context(), pollID)
	if err != nil {
		if errors.Is(err, polls.ErrNotFound) {
			response.NotFound(c, "poll not found")
			return
		}
		h.logger.Error("compute results", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "failed to compute results")
		return
	}
	response.OK(c, res)
}
