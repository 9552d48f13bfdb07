package polls

import (
	"errors"
	"time"

	"github.com/pollpulse/backend/internal/models"
)

var (
	// ErrNotFound is returned when a poll does not exist.
	ErrNotFound = errors.New("poll not found")
	// ErrPollClosed is returned when voting on a deactivated poll.
	ErrPollClosed = errors.New("poll is closed")
	// ErrPollExpired is returned when voting on a poll past its expiry.
	ErrPollExpired = errors.New("poll has expired")
)

// Clock supplies the current time. Injected so expiry checks are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Gate decides whether a poll may accept votes.
type Gate struct {
	clock Clock
}

// NewGate creates a lifecycle gate on the given clock.
func NewGate(clock Clock) *Gate {
	return &Gate{clock: clock}
}

// Now exposes the gate's clock, so callers embedding the votability
// predicate in storage queries use the same time source.
func (g *Gate) Now() time.Time { return g.clock.Now() }

// Expired reports whether the poll's expiry, if set, has passed.
func (g *Gate) Expired(p *models.Poll) bool {
	return p.ExpiresAt != nil && !g.clock.Now().Before(*p.ExpiresAt)
}

// Votable reports whether the poll currently accepts votes.
func (g *Gate) Votable(p *models.Poll) bool {
	return p.IsActive && !g.Expired(p)
}

// AssertVotable returns nil for a votable poll, ErrPollClosed for an
// inactive one, or ErrPollExpired for one past its expiry. The two
// failure kinds are distinct so callers can report precise messages.
func (g *Gate) AssertVotable(p *models.Poll) error {
	if !p.IsActive {
		return ErrPollClosed
	}
	if g.Expired(p) {
		return ErrPollExpired
	}
	return nil
}
