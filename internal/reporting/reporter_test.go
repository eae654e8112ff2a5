package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
	"github.com/smoradi/quotameter/internal/reporting"
	"github.com/smoradi/quotameter/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func settle(t *testing.T, svc *ledger.Service, tenantID int64, feature, mdl string, in, out int64) {
	t.Helper()
	ctx := context.Background()
	res, err := svc.Reserve(ctx, tenantID, nil, feature, model.MicroUSD(90_000), 0)
	require.NoError(t, err)
	rec, err := svc.Settle(ctx, res.ID, mdl, in, out)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestSummary(t *testing.T) {
	st := memory.New()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	prices, err := pricing.New(map[string]pricing.Entry{
		"gpt-4":         {InputPer1K: model.MicroUSD(30_000), OutputPer1K: model.MicroUSD(60_000)},
		"gpt-3.5-turbo": {InputPer1K: model.MicroUSD(500), OutputPer1K: model.MicroUSD(1_500)},
	}, "gpt-4")
	require.NoError(t, err)

	svc := ledger.New(st, prices, ledger.Defaults{
		TokenLimit: 100_000,
		CostLimit:  model.MicroUSD(200_000),
	}, zap.NewNop()).WithClock(func() time.Time { return now })

	// $0.06 + $0.002 + $0.009 for tenant 1, one unrelated record for tenant 2
	settle(t, svc, 1, "chat", "gpt-4", 800, 600)
	settle(t, svc, 1, "chat", "gpt-3.5-turbo", 1000, 1000)
	settle(t, svc, 1, "summarize", "gpt-4", 100, 100)
	settle(t, svc, 2, "chat", "gpt-4", 500, 500)

	r := reporting.New(st, svc)
	sum, err := r.Summary(context.Background(), 1, 30*24*time.Hour, now)
	require.NoError(t, err)

	require.Equal(t, int64(1), sum.TenantID)
	require.Equal(t, int64(3), sum.Totals.Records)
	require.Equal(t, int64(1_900), sum.Totals.InputTokens)
	require.Equal(t, int64(1_700), sum.Totals.OutputTokens)
	require.Equal(t, model.MicroUSD(71_000), sum.Totals.Cost)

	require.Len(t, sum.ByFeature, 2)
	require.Equal(t, int64(2), sum.ByFeature["chat"].Records)
	require.Equal(t, int64(1), sum.ByFeature["summarize"].Records)

	require.Len(t, sum.ByModel, 2)
	require.Equal(t, model.MicroUSD(69_000), sum.ByModel["gpt-4"].Cost)
	require.Equal(t, model.MicroUSD(2_000), sum.ByModel["gpt-3.5-turbo"].Cost)

	require.Len(t, sum.Recent, 3)

	// live counters reflect settled spend against the limits
	require.Equal(t, model.MicroUSD(200_000), sum.CostLimit)
	require.Equal(t, model.MicroUSD(71_000), sum.CostUsed)
	require.InDelta(t, 35.5, sum.PctUsed, 0.001)
}

func TestSummaryWindowExcludesOldRecords(t *testing.T) {
	st := memory.New()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	prices, err := pricing.New(map[string]pricing.Entry{
		"gpt-4": {InputPer1K: model.MicroUSD(30_000), OutputPer1K: model.MicroUSD(60_000)},
	}, "gpt-4")
	require.NoError(t, err)

	clock := now.Add(-48 * time.Hour)
	svc := ledger.New(st, prices, ledger.Defaults{
		TokenLimit: 100_000,
		CostLimit:  model.MicroUSD(200_000),
	}, zap.NewNop()).WithClock(func() time.Time { return clock })

	settle(t, svc, 1, "chat", "gpt-4", 800, 600) // two days ago
	clock = now
	settle(t, svc, 1, "chat", "gpt-4", 800, 600) // now

	r := reporting.New(st, svc)
	sum, err := r.Summary(context.Background(), 1, 24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.Totals.Records)

	wide, err := r.Summary(context.Background(), 1, 30*24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), wide.Totals.Records)
}

func TestGlobalTotals(t *testing.T) {
	st := memory.New()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	prices, err := pricing.New(map[string]pricing.Entry{
		"gpt-4": {InputPer1K: model.MicroUSD(30_000), OutputPer1K: model.MicroUSD(60_000)},
	}, "gpt-4")
	require.NoError(t, err)

	svc := ledger.New(st, prices, ledger.Defaults{
		TokenLimit: 100_000,
		CostLimit:  model.MicroUSD(200_000),
	}, zap.NewNop()).WithClock(func() time.Time { return now })

	settle(t, svc, 1, "chat", "gpt-4", 800, 600)
	settle(t, svc, 2, "chat", "gpt-4", 800, 600)

	r := reporting.New(st, svc)
	totals, err := r.GlobalTotals(context.Background(), 30*24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), totals.Records)
	require.Equal(t, model.MicroUSD(120_000), totals.Cost)
}
