// Package reporting provides read-only dashboard views over the usage ledger
// and the live quota counters. It sees only settled data: outstanding
// reservations belong to enforcement, not history.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/smoradi/quotameter/internal/model"
)

// UsageReader is the aggregate surface of the usage ledger. Implemented by the
// MySQL usage repository and by the in-memory store.
type UsageReader interface {
	Totals(ctx context.Context, tenantID int64, from, to time.Time) (model.UsageTotals, error)
	TotalsByFeature(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error)
	TotalsByModel(ctx context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error)
	Recent(ctx context.Context, tenantID int64, n int) ([]model.UsageRecord, error)
	GlobalTotals(ctx context.Context, from, to time.Time) (model.UsageTotals, error)
}

// QuotaReader exposes the settled portion of the live ledger counters.
// Satisfied by *ledger.Service.
type QuotaReader interface {
	GetLimit(ctx context.Context, tenantID int64) (*model.QuotaConfig, error)
}

type Reporter struct {
	usage   UsageReader
	quotas  QuotaReader
	recentN int
}

func New(usage UsageReader, quotas QuotaReader) *Reporter {
	return &Reporter{usage: usage, quotas: quotas, recentN: 20}
}

// Summary builds the per-tenant dashboard view for the given window.
func (r *Reporter) Summary(ctx context.Context, tenantID int64, window time.Duration, now time.Time) (*model.UsageSummary, error) {
	from := now.Add(-window)

	q, err := r.quotas.GetLimit(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("summary quota: %w", err)
	}
	totals, err := r.usage.Totals(ctx, tenantID, from, now)
	if err != nil {
		return nil, fmt.Errorf("summary totals: %w", err)
	}
	byFeature, err := r.usage.TotalsByFeature(ctx, tenantID, from, now)
	if err != nil {
		return nil, fmt.Errorf("summary by feature: %w", err)
	}
	byModel, err := r.usage.TotalsByModel(ctx, tenantID, from, now)
	if err != nil {
		return nil, fmt.Errorf("summary by model: %w", err)
	}
	recent, err := r.usage.Recent(ctx, tenantID, r.recentN)
	if err != nil {
		return nil, fmt.Errorf("summary recent: %w", err)
	}

	return &model.UsageSummary{
		TenantID:    tenantID,
		Totals:      totals,
		TokenLimit:  q.MonthlyTokenLimit,
		CostLimit:   q.MonthlyCostLimit,
		TokensUsed:  q.TokensUsed,
		CostUsed:    q.CostUsed,
		PctUsed:     q.PctUsed(),
		PeriodEnd:   q.PeriodEnd,
		ByFeature:   byFeature,
		ByModel:     byModel,
		Recent:      recent,
		WindowStart: from,
		WindowEnd:   now,
	}, nil
}

// GlobalTotals aggregates across all tenants for operator views.
func (r *Reporter) GlobalTotals(ctx context.Context, window time.Duration, now time.Time) (model.UsageTotals, error) {
	return r.usage.GlobalTotals(ctx, now.Add(-window), now)
}
