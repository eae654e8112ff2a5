package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smoradi/quotameter/internal/model"
)

// ReservationRepository persists reservation handles. State transitions are
// guarded in SQL (WHERE state = 'open') so a consumed handle can never be
// consumed again even across retries.
type ReservationRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, r *model.Reservation) error
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Reservation, error)
	// MarkConsumed transitions open -> state. Returns false when the handle
	// was not open anymore.
	MarkConsumed(ctx context.Context, tx *sqlx.Tx, id string, state model.ReservationState) (bool, error)
	// ListStaleOpen returns ids of open reservations created before cutoff.
	ListStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type reservationRepo struct {
	db *sqlx.DB
}

func NewReservationRepository(db *sqlx.DB) ReservationRepository { return &reservationRepo{db: db} }

func (r *reservationRepo) Insert(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reservations
		    (id, tenant_id, actor_id, feature, estimated_cost, estimated_tokens, state, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, 'open', ?, ?)
	`, res.ID, res.TenantID, res.ActorID, res.Feature, res.EstimatedCost, res.EstimatedTokens, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *reservationRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Reservation, error) {
	var res model.Reservation
	err := tx.GetContext(ctx, &res, `
		SELECT id, tenant_id, actor_id, feature, estimated_cost, estimated_tokens, state, created_at, updated_at
		  FROM reservations
		 WHERE id = ?
		 FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) MarkConsumed(ctx context.Context, tx *sqlx.Tx, id string, state model.ReservationState) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE reservations
		   SET state = ?, updated_at = NOW()
		 WHERE id = ? AND state = 'open'
	`, state.String(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *reservationRepo) ListStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id
		  FROM reservations
		 WHERE state = 'open' AND created_at < ?
		 ORDER BY created_at
		 LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
