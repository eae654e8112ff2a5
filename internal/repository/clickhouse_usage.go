package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smoradi/quotameter/internal/model"
)

// CHUsageRepository reads and writes the ClickHouse mirror of usage_records.
// The mirror serves dashboard listings and operator-wide aggregates; MySQL
// stays the source of truth.
type CHUsageRepository interface {
	InsertBatch(ctx context.Context, recs []model.UsageEnvelope) error
	ListByTenant(ctx context.Context, tenantID int64, feature, mdl string, limit, offset int) ([]model.UsageRecord, error)
	GlobalTotals(ctx context.Context, from, to time.Time) (model.UsageTotals, error)
}

type chUsageRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHUsageRepository(ch *sqlx.DB) CHUsageRepository {
	return &chUsageRepository{ch: ch}
}

func (r *chUsageRepository) InsertBatch(ctx context.Context, recs []model.UsageEnvelope) error {
	if len(recs) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(recs)*10)

	sb.WriteString(`
		INSERT INTO quotameter.usage_records
		    (id, tenant_id, actor_id, feature, model, input_tokens, output_tokens, cost, reservation_id, created_at)
		VALUES `)
	for i, rec := range recs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, rec.ID, rec.TenantID, rec.ActorID, rec.Feature, rec.Model,
			rec.InputTokens, rec.OutputTokens, rec.CostMicros, rec.ReservationID, rec.CreatedAt)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *chUsageRepository) ListByTenant(ctx context.Context, tenantID int64, feature, mdl string, limit, offset int) ([]model.UsageRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, tenant_id, actor_id, feature, model, input_tokens, output_tokens, cost, reservation_id, created_at
		FROM quotameter.usage_records
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if feature != "" {
		q += " AND feature = ?"
		args = append(args, feature)
	}
	if mdl != "" {
		q += " AND model = ?"
		args = append(args, mdl)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.UsageRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chUsageRepository) GlobalTotals(ctx context.Context, from, to time.Time) (model.UsageTotals, error) {
	var t model.UsageTotals
	err := r.ch.GetContext(ctx, &t, `
		SELECT
			COALESCE(SUM(input_tokens), 0)  AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cost), 0)          AS cost,
			COUNT(*)                        AS records
		FROM quotameter.usage_records
		WHERE created_at BETWEEN ? AND ?
	`, from, to)
	return t, err
}
