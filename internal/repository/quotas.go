package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/smoradi/quotameter/internal/model"
)

// QuotaRepository persists per-tenant quota configs. All mutations run inside
// a caller-provided transaction holding the tenant's row lock.
type QuotaRepository interface {
	// EnsureConfig lazily creates the tenant's config row with defaults.
	EnsureConfig(ctx context.Context, tx *sqlx.Tx, def model.QuotaConfig) error
	// GetForUpdate locks and returns the tenant's config row.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64) (*model.QuotaConfig, error)
	// Save writes back all mutable fields of a locked config.
	Save(ctx context.Context, tx *sqlx.Tx, q *model.QuotaConfig) error
	// Get reads without locking; nil when the tenant has no config yet.
	Get(ctx context.Context, tenantID int64) (*model.QuotaConfig, error)
}

type quotaRepo struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) QuotaRepository { return &quotaRepo{db: db} }

func (r *quotaRepo) EnsureConfig(ctx context.Context, tx *sqlx.Tx, def model.QuotaConfig) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO quota_configs
		    (tenant_id, monthly_token_limit, monthly_cost_limit, tokens_used, cost_used, period_end, created_at, updated_at)
		VALUES
		    (?, ?, ?, 0, 0, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE tenant_id = tenant_id
	`, def.TenantID, def.MonthlyTokenLimit, def.MonthlyCostLimit, def.PeriodEnd)
	return err
}

func (r *quotaRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64) (*model.QuotaConfig, error) {
	var q model.QuotaConfig
	err := tx.GetContext(ctx, &q, `
		SELECT tenant_id, monthly_token_limit, monthly_cost_limit, tokens_used, cost_used, period_end, created_at, updated_at
		  FROM quota_configs
		 WHERE tenant_id = ?
		 FOR UPDATE
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotaRepo) Save(ctx context.Context, tx *sqlx.Tx, q *model.QuotaConfig) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE quota_configs
		   SET monthly_token_limit = ?, monthly_cost_limit = ?,
		       tokens_used = ?, cost_used = ?, period_end = ?, updated_at = NOW()
		 WHERE tenant_id = ?
	`, q.MonthlyTokenLimit, q.MonthlyCostLimit, q.TokensUsed, q.CostUsed, q.PeriodEnd, q.TenantID)
	return err
}

func (r *quotaRepo) Get(ctx context.Context, tenantID int64) (*model.QuotaConfig, error) {
	var q model.QuotaConfig
	err := r.db.GetContext(ctx, &q, `
		SELECT tenant_id, monthly_token_limit, monthly_cost_limit, tokens_used, cost_used, period_end, created_at, updated_at
		  FROM quota_configs
		 WHERE tenant_id = ? LIMIT 1
	`, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}
