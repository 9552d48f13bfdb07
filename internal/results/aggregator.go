// Package results computes per-option vote counts and percentages for a
// poll. Reads are point-in-time snapshots: they never block concurrent
// casts and reflect some consistent prior state.
package results

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
)

// SnapshotStore caches computed snapshots. Satisfied by *Cache.
type SnapshotStore interface {
	Get(ctx context.Context, pollID uuid.UUID) (*models.PollResults, bool)
	Set(ctx context.Context, pollID uuid.UUID, res *models.PollResults)
}

// Querier is the subset of pgxpool.Pool the aggregator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Aggregator computes poll results from the vote ledger rows.
type Aggregator struct {
	pool  Querier
	gate  *polls.Gate
	cache SnapshotStore
}

// NewAggregator creates a results aggregator. cache may be nil to
// disable snapshot caching.
func NewAggregator(pool Querier, gate *polls.Gate, cache SnapshotStore) *Aggregator {
	return &Aggregator{pool: pool, gate: gate, cache: cache}
}

// Compute returns the results snapshot for a poll: per-option counts
// and percentages in display order. Closed and expired polls remain
// queryable. Fails with polls.ErrNotFound for a missing poll.
func (a *Aggregator) Compute(ctx context.Context, pollID uuid.UUID) (*models.PollResults, error) {
	if a.cache != nil {
		if res, ok := a.cache.Get(ctx, pollID); ok {
			return res, nil
		}
	}

	var p models.Poll
	err := a.pool.QueryRow(ctx, `SELECT id, title, is_active, expires_at FROM polls WHERE id = $1`, pollID).
		Scan(&p.ID, &p.Title, &p.IsActive, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, polls.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	const q = `SELECT o.id, o.text, COUNT(v.id)
		FROM options o
		LEFT JOIN votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.text, o.order_index
		ORDER BY o.order_index, o.id`
	rows, err := a.pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []optionCount
	for rows.Next() {
		var oc optionCount
		if err := rows.Scan(&oc.id, &oc.text, &oc.count); err != nil {
			return nil, err
		}
		counts = append(counts, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := buildSnapshot(&p, a.gate.Expired(&p), counts)
	if a.cache != nil {
		a.cache.Set(ctx, pollID, res)
	}
	return res, nil
}

type optionCount struct {
	id    uuid.UUID
	text  string
	count int64
}

// buildSnapshot assembles the results payload. Percentages are rounded
// to one decimal place and are 0.0 for every option of a zero-vote poll.
func buildSnapshot(p *models.Poll, expired bool, counts []optionCount) *models.PollResults {
	res := &models.PollResults{
		PollID:    p.ID,
		Title:     p.Title,
		IsActive:  p.IsActive,
		IsExpired: expired,
		Options:   make([]models.OptionResult, 0, len(counts)),
	}
	for _, oc := range counts {
		res.TotalVotes += oc.count
	}
	for _, oc := range counts {
		pct := 0.0
		if res.TotalVotes > 0 {
			pct = math.Round(float64(oc.count)/float64(res.TotalVotes)*1000) / 10
		}
		res.Options = append(res.Options, models.OptionResult{
			OptionID:   oc.id,
			Text:       oc.text,
			Count:      oc.count,
			Percentage: pct,
		})
	}
	return res
}
