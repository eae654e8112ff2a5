package worker

import (
	"context"
	"time"

	"github.com/smoradi/quotameter/internal/ledger"
	"go.uber.org/zap"
)

// Janitor force-releases reservations whose caller never settled or released
// them (crashed between Reserve and the metered call returning). Lazy
// enforcement alone would leave that headroom consumed until the period rolls
// over; the sweep bounds the staleness.
type Janitor struct {
	Ledger   *ledger.Service
	Interval time.Duration // sweep cadence
	MaxAge   time.Duration // longer than the slowest plausible metered call
	Batch    int
	Log      *zap.Logger
}

func NewJanitor(svc *ledger.Service, interval, maxAge time.Duration, batch int, log *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Janitor{Ledger: svc, Interval: interval, MaxAge: maxAge, Batch: batch, Log: log}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	tick := time.NewTicker(j.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			n, err := j.Ledger.ReleaseStale(ctx, j.MaxAge, j.Batch)
			if err != nil {
				j.Log.Error("janitor sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				j.Log.Info("janitor sweep released stale reservations", zap.Int("count", n))
			}
		}
	}
}
