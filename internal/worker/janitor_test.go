package worker

import (
	"context"
	"testing"
	"time"

	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
	"github.com/smoradi/quotameter/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitorDefaults(t *testing.T) {
	j := NewJanitor(nil, 0, 0, 0, zap.NewNop())
	require.Equal(t, time.Minute, j.Interval)
	require.Equal(t, 10*time.Minute, j.MaxAge)
	require.Equal(t, 100, j.Batch)
}

func TestJanitorReleasesStaleReservations(t *testing.T) {
	st := memory.New()
	prices, err := pricing.New(map[string]pricing.Entry{
		"gpt-4": {InputPer1K: model.MicroUSD(30_000), OutputPer1K: model.MicroUSD(60_000)},
	}, "gpt-4")
	require.NoError(t, err)

	clock := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := ledger.New(st, prices, ledger.Defaults{
		TokenLimit: 100_000,
		CostLimit:  model.MicroUSD(200_000),
	}, zap.NewNop()).WithClock(func() time.Time { return clock })

	_, err = svc.Reserve(context.Background(), 1, nil, "chat", model.MicroUSD(90_000), 0)
	require.NoError(t, err)

	// the caller never settles; an hour passes
	clock = clock.Add(time.Hour)

	j := NewJanitor(svc, 5*time.Millisecond, 10*time.Minute, 100, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = j.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	q, err := svc.GetLimit(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, model.MicroUSD(0), q.CostUsed)
}
