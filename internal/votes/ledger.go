// Package votes implements the vote ledger: the storage layer that
// records at most one vote per (poll, voter key) and enforces poll
// votability atomically with the insert.
package votes

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
)

var (
	// ErrOptionNotFound is returned when the option does not exist.
	ErrOptionNotFound = errors.New("option not found")
	// ErrOptionPollMismatch is returned when the option belongs to a different poll.
	ErrOptionPollMismatch = errors.New("option does not belong to this poll")
	// ErrDuplicateVote is returned when the voter already has a vote on the poll.
	ErrDuplicateVote = errors.New("voter has already voted on this poll")
	// ErrUnavailable is returned for transient storage failures after the
	// bounded retry is exhausted. It is the only retryable error class.
	ErrUnavailable = errors.New("vote storage temporarily unavailable")
)

// errNotEligible signals that the conditional insert selected no row:
// the poll/option pair was missing, mismatched, or not votable.
var errNotEligible = errors.New("no eligible poll/option row")

// Invalidator drops any cached results snapshot for a poll. Implemented
// by the results cache; the ledger calls it after each successful cast.
type Invalidator interface {
	Invalidate(ctx context.Context, pollID uuid.UUID)
}

// Querier is the subset of pgxpool.Pool the ledger needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger records votes. Duplicate prevention rests entirely on the
// votes_poll_voter_unique constraint, never on an in-process lock, so it
// holds across multiple service instances.
type Ledger struct {
	pool   Querier
	gate   *polls.Gate
	cache  Invalidator
	logger *zap.Logger
}

// NewLedger creates a vote ledger. cache may be nil when no results
// cache is configured.
func NewLedger(pool Querier, gate *polls.Gate, cache Invalidator, logger *zap.Logger) *Ledger {
	return &Ledger{pool: pool, gate: gate, cache: cache, logger: logger}
}

// CastVote atomically records a vote for voterKey on (pollID, optionID).
//
// The insert itself verifies that the option belongs to the poll and
// that the poll is active and unexpired, so a poll closing between a
// prior check and the insert cannot slip a vote through. Failures map
// to polls.ErrNotFound, ErrOptionNotFound, ErrOptionPollMismatch,
// polls.ErrPollClosed, polls.ErrPollExpired, ErrDuplicateVote or
// ErrUnavailable.
func (l *Ledger) CastVote(ctx context.Context, pollID, optionID uuid.UUID, voterKey string) (*models.Vote, error) {
	now := l.gate.Now().UTC()
	v := &models.Vote{
		ID:       uuid.New(),
		PollID:   pollID,
		OptionID: optionID,
		VoterKey: voterKey,
	}

	for attempt := 0; ; attempt++ {
		err := l.insert(ctx, v, now)
		switch {
		case err == nil:
			if l.cache != nil {
				l.cache.Invalidate(ctx, pollID)
			}
			return v, nil

		case errors.Is(err, errNotEligible):
			if cerr := l.diagnose(ctx, pollID, optionID); cerr != nil {
				return nil, cerr
			}
			// Re-read shows a votable poll and a matching option, so the
			// insert lost a race with a concurrent poll update. One retry.
			if attempt == 0 {
				continue
			}
			return nil, ErrUnavailable

		case isDuplicate(err):
			return nil, ErrDuplicateVote

		case isTransient(err):
			if attempt == 0 {
				l.logger.Warn("transient storage error on cast, retrying",
					zap.String("poll_id", pollID.String()), zap.Error(err))
				continue
			}
			return nil, ErrUnavailable

		default:
			return nil, err
		}
	}
}

// insert performs the conditional insert. The votability predicate is
// part of the statement, with the gate's clock supplying "now".
func (l *Ledger) insert(ctx context.Context, v *models.Vote, now time.Time) error {
	const q = `INSERT INTO votes (id, poll_id, option_id, voter_key, created_at)
		SELECT $1, p.id, o.id, $4, $5
		FROM polls p
		JOIN options o ON o.poll_id = p.id
		WHERE p.id = $2 AND o.id = $3
			AND p.is_active
			AND (p.expires_at IS NULL OR p.expires_at > $5)
		RETURNING created_at`
	err := l.pool.QueryRow(ctx, q, v.ID, v.PollID, v.OptionID, v.VoterKey, now).
		Scan(&v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNotEligible
	}
	return err
}

// diagnose classifies a failed conditional insert with read-only
// lookups: missing poll, missing or mismatched option, closed or
// expired poll. Returns nil when the current state looks votable.
func (l *Ledger) diagnose(ctx context.Context, pollID, optionID uuid.UUID) error {
	var p models.Poll
	err := l.pool.QueryRow(ctx, `SELECT is_active, expires_at FROM polls WHERE id = $1`, pollID).
		Scan(&p.IsActive, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return polls.ErrNotFound
	}
	if err != nil {
		return err
	}

	var optionPollID uuid.UUID
	err = l.pool.QueryRow(ctx, `SELECT poll_id FROM options WHERE id = $1`, optionID).
		Scan(&optionPollID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOptionNotFound
	}
	if err != nil {
		return err
	}
	if optionPollID != pollID {
		return ErrOptionPollMismatch
	}

	return l.gate.AssertVotable(&p)
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isTransient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
