package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smoradi/quotameter/internal/model"
)

// UsageRepository is the append-only ledger of settled calls plus the
// read-aggregations the reporter needs. Rows are never updated or deleted.
type UsageRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rec *model.UsageRecord) error

	Totals(ctx context.Context, tenantID int64, from, to time.Time) (model.UsageTotals, error)
	TotalsByFeature(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error)
	TotalsByModel(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error)
	Recent(ctx context.Context, tenantID int64, n int) ([]model.UsageRecord, error)
	GlobalTotals(ctx context.Context, from, to time.Time) (model.UsageTotals, error)
}

type usageRepo struct {
	db *sqlx.DB
}

func NewUsageRepository(db *sqlx.DB) UsageRepository { return &usageRepo{db: db} }

func (r *usageRepo) Insert(ctx context.Context, tx *sqlx.Tx, rec *model.UsageRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records
		    (id, tenant_id, actor_id, feature, model, input_tokens, output_tokens, cost, reservation_id, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TenantID, rec.ActorID, rec.Feature, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost, rec.ReservationID, rec.CreatedAt)
	return err
}

const totalsCols = `
	COALESCE(SUM(input_tokens), 0)  AS input_tokens,
	COALESCE(SUM(output_tokens), 0) AS output_tokens,
	COALESCE(SUM(cost), 0)          AS cost,
	COUNT(*)                        AS records
`

func (r *usageRepo) Totals(ctx context.Context, tenantID int64, from, to time.Time) (model.UsageTotals, error) {
	var t model.UsageTotals
	err := r.db.GetContext(ctx, &t, `
		SELECT `+totalsCols+`
		  FROM usage_records
		 WHERE tenant_id = ? AND created_at BETWEEN ? AND ?
	`, tenantID, from, to)
	return t, err
}

func (r *usageRepo) TotalsByFeature(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error) {
	return r.grouped(ctx, "feature", tenantID, from, to)
}

func (r *usageRepo) TotalsByModel(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error) {
	return r.grouped(ctx, "model", tenantID, from, to)
}

func (r *usageRepo) grouped(ctx context.Context, col string, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error) {
	type row struct {
		Key string `db:"grp"`
		model.UsageTotals
	}
	// col is one of two compile-time constants, never user input.
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+col+` AS grp, `+totalsCols+`
		  FROM usage_records
		 WHERE tenant_id = ? AND created_at BETWEEN ? AND ?
		 GROUP BY `+col+`
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.UsageTotals, len(rows))
	for _, rw := range rows {
		out[rw.Key] = rw.UsageTotals
	}
	return out, nil
}

func (r *usageRepo) Recent(ctx context.Context, tenantID int64, n int) ([]model.UsageRecord, error) {
	if n <= 0 || n > 200 {
		n = 20
	}
	var recs []model.UsageRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT id, tenant_id, actor_id, feature, model, input_tokens, output_tokens, cost, reservation_id, created_at
		  FROM usage_records
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?
	`, tenantID, n)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *usageRepo) GlobalTotals(ctx context.Context, from, to time.Time) (model.UsageTotals, error) {
	var t model.UsageTotals
	err := r.db.GetContext(ctx, &t, `
		SELECT `+totalsCols+`
		  FROM usage_records
		 WHERE created_at BETWEEN ? AND ?
	`, from, to)
	return t, err
}
