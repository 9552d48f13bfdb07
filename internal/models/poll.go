package models

import (
	"time"

	"github.com/google/uuid"
)

// Poll represents a multiple-choice poll.
type Poll struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Options     []Option   `json:"options,omitempty"`
}

// Option is a single choice within a poll. Order indices are unique per
// poll but need not be contiguous.
type Option struct {
	ID         uuid.UUID `json:"id"`
	PollID     uuid.UUID `json:"poll_id"`
	Text       string    `json:"text"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vote records a single voter's choice on a poll. Votes are immutable;
// at most one exists per (poll, voter key).
type Vote struct {
	ID        uuid.UUID `json:"id"`
	PollID    uuid.UUID `json:"poll_id"`
	OptionID  uuid.UUID `json:"option_id"`
	VoterKey  string    `json:"-"`
	CreatedAt time.Time `json:"cast_at"`
}

// OptionResult is the per-option slice of a results snapshot.
type OptionResult struct {
	OptionID   uuid.UUID `json:"option_id"`
	Text       string    `json:"text"`
	Count      int64     `json:"count"`
	Percentage float64   `json:"percentage"`
}

// PollResults is a point-in-time aggregation of a poll's votes.
type PollResults struct {
	PollID     uuid.UUID      `json:"poll_id"`
	Title      string         `json:"title"`
	IsActive   bool           `json:"is_active"`
	IsExpired  bool           `json:"is_expired"`
	TotalVotes int64          `json:"total_votes"`
	Options    []OptionResult `json:"options"`
}
