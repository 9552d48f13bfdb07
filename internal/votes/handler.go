package votes

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/identity"
	"github.com/pollpulse/backend/internal/middleware"
	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
	"github.com/pollpulse/backend/pkg/response"
)

// CastRequest is the body for POST /polls/:id/vote.
type CastRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// CastResponse is the success payload for a recorded vote.
type CastResponse struct {
	VoteID   uuid.UUID `json:"vote_id"`
	PollID   uuid.UUID `json:"poll_id"`
	OptionID uuid.UUID `json:"option_id"`
	CastAt   string    `json:"cast_at"`
}

// Caster records votes. Satisfied by *Ledger.
type Caster interface {
	CastVote(ctx context.Context, pollID, optionID uuid.UUID, voterKey string) (*models.Vote, error)
}

// Handler handles the vote cast endpoint.
type Handler struct {
	ledger   Caster
	resolver *identity.Resolver
	logger   *zap.Logger
}

// NewHandler creates a votes handler.
func NewHandler(ledger Caster, resolver *identity.Resolver, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledger, resolver: resolver, logger: logger}
}

// Cast handles POST /polls/:id/vote. Authenticated and anonymous voters
// are both admitted; identity is resolved once here and passed through.
func (h *Handler) Cast(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}

	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: option_id is required")
		return
	}

	idCtx := identity.Context{ClientIP: c.ClientIP()}
	if userID, ok := middleware.UserID(c); ok {
		idCtx.UserID = &userID
	}
	voterKey, err := h.resolver.Resolve(idCtx)
	if err != nil {
		response.BadRequest(c, "unable to identify voter")
		return
	}

	v, err := h.ledger.CastVote(c.Request.Context(), pollID, req.OptionID, voterKey)
	if err != nil {
		h.fail(c, pollID, err)
		return
	}

	response.Created(c, CastResponse{
		VoteID:   v.ID,
		PollID:   v.PollID,
		OptionID: v.OptionID,
		CastAt:   v.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) fail(c *gin.Context, pollID uuid.UUID, err error) {
	switch {
	case errors.Is(err, polls.ErrNotFound):
		response.NotFound(c, "poll not found")
	case errors.Is(err, ErrOptionNotFound):
		response.NotFound(c, "option not found")
	case errors.Is(err, ErrOptionPollMismatch):
		response.BadRequest(c, "option does not belong to this poll")
	case errors.Is(err, polls.ErrPollClosed):
		response.Forbidden(c, "this poll is no longer accepting votes")
	case errors.Is(err, polls.ErrPollExpired):
		response.Forbidden(c, "this poll has expired")
	case errors.Is(err, ErrDuplicateVote):
		response.Conflict(c, "you have already voted on this poll")
	case errors.Is(err, ErrUnavailable):
		response.ServiceUnavailable(c, "voting is temporarily unavailable, please retry")
	default:
		h.logger.Error("cast vote", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "failed to record vote")
	}
}
