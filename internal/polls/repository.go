package polls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pollpulse/backend/internal/models"
)

// Repository handles poll and option persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a poll and its options in one transaction.
func (r *Repository) Create(ctx context.Context, p *models.Poll) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const pollQ = `INSERT INTO polls (id, title, description, created_by, is_active, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE, $4)
		RETURNING id, is_active, created_at`
	if err := tx.QueryRow(ctx, pollQ, p.Title, p.Description, p.CreatedBy, p.ExpiresAt).
		Scan(&p.ID, &p.IsActive, &p.CreatedAt); err != nil {
		return err
	}

	const optionQ = `INSERT INTO options (id, poll_id, text, order_index)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at`
	for i := range p.Options {
		o := &p.Options[i]
		o.PollID = p.ID
		if err := tx.QueryRow(ctx, optionQ, p.ID, o.Text, o.OrderIndex).
			Scan(&o.ID, &o.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns a poll with its options in display order.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	const q = `SELECT id, title, description, created_by, is_active, expires_at, created_at
		FROM polls WHERE id = $1`
	var p models.Poll
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&p.ID, &p.Title, &p.Description, &p.CreatedBy, &p.IsActive, &p.ExpiresAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Options, err = r.OptionsByPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OptionsByPoll returns a poll's options ordered by order_index.
func (r *Repository) OptionsByPoll(ctx context.Context, pollID uuid.UUID) ([]models.Option, error) {
	const q = `SELECT id, poll_id, text, order_index, created_at
		FROM options WHERE poll_id = $1 ORDER BY order_index, id`
	rows, err := r.pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.OrderIndex, &o.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// List returns polls newest first, optionally filtered by active flag,
// with options attached.
func (r *Repository) List(ctx context.Context, isActive *bool) ([]models.Poll, error) {
	base := `SELECT id, title, description, created_by, is_active, expires_at, created_at FROM polls`
	var args []interface{}
	if isActive != nil {
		base += ` WHERE is_active = $1`
		args = append(args, *isActive)
	}
	rows, err := r.pool.Query(ctx, base+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Poll
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.CreatedBy, &p.IsActive, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		list[i].Options, err = r.OptionsByPoll(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateParams holds the mutable poll fields; nil means leave unchanged.
type UpdateParams struct {
	Title       *string
	Description *string
	IsActive    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Update patches a poll's mutable fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) error {
	const q = `UPDATE polls SET
		title = COALESCE($1, title),
		description = COALESCE($2, description),
		is_active = COALESCE($3, is_active),
		expires_at = CASE WHEN $5 THEN NULL ELSE COALESCE($4, expires_at) END
		WHERE id = $6`
	tag, err := r.pool.Exec(ctx, q, params.Title, params.Description, params.IsActive, params.ExpiresAt, params.ClearExpiry, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a poll; options and votes cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
