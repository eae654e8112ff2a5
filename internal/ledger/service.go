package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smoradi/quotameter/internal/metrics"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
	"github.com/smoradi/quotameter/internal/util"
	"go.uber.org/zap"
)

// Defaults are applied when a tenant's quota config is created lazily on
// first use.
type Defaults struct {
	TokenLimit int64
	CostLimit  model.Money
}

// Service enforces per-tenant monthly quotas with the reserve/settle/release
// protocol. Actual cost is unknown until the metered call returns, so Reserve
// charges a caller-supplied worst-case estimate up front and Settle reconciles
// it against the real cost; this bounds overshoot to the in-flight estimates
// instead of leaving a check-then-act window open across the slow call.
//
// The external call itself happens outside any lock held here: only the cheap
// counter mutations run inside the tenant's critical section.
type Service struct {
	store    Store
	prices   *pricing.Table
	defaults Defaults
	log      *zap.Logger
	now      func() time.Time
}

func New(store Store, prices *pricing.Table, defaults Defaults, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		prices:   prices,
		defaults: defaults,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) defaultConfig(tenantID int64) model.QuotaConfig {
	return model.QuotaConfig{
		TenantID:          tenantID,
		MonthlyTokenLimit: s.defaults.TokenLimit,
		MonthlyCostLimit:  s.defaults.CostLimit,
		PeriodEnd:         firstPeriodEnd(s.now()),
	}
}

// Reserve charges estCost (and estTokens, when known) against the tenant's
// period counters if the limits allow it, and returns the reservation handle.
// Rollover is applied first, inside the same critical section as the check.
// On ErrQuotaExceeded no counter is mutated.
func (s *Service) Reserve(ctx context.Context, tenantID int64, actorID *int64, feature string, estCost model.Money, estTokens int64) (*model.Reservation, error) {
	if estCost <= 0 {
		return nil, fmt.Errorf("reserve: estimated cost must be positive, got %s", estCost)
	}
	if estTokens < 0 {
		estTokens = 0
	}

	now := s.now()
	res := &model.Reservation{
		ID:              util.New(),
		TenantID:        tenantID,
		ActorID:         actorID,
		Feature:         feature,
		EstimatedCost:   estCost,
		EstimatedTokens: estTokens,
		State:           model.ReservationOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.Reserve(ctx, s.defaultConfig(tenantID), func(q *model.QuotaConfig) error {
		if applyRollover(q, now) {
			metrics.RolloversTotal.Inc()
		}
		if q.MonthlyCostLimit <= 0 {
			return ErrQuotaExceeded
		}
		if q.CostUsed+estCost > q.MonthlyCostLimit {
			return ErrQuotaExceeded
		}
		if estTokens > 0 && q.TokensUsed+estTokens > q.MonthlyTokenLimit {
			return ErrQuotaExceeded
		}
		q.CostUsed += estCost
		q.TokensUsed += estTokens
		return nil
	}, res)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.ReservationsTotal.WithLabelValues("denied").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("reserve tenant %d: %w", tenantID, err)
	}

	metrics.ReservationsTotal.WithLabelValues("granted").Inc()
	return res, nil
}

// Settle reconciles a reservation with the actual token counts: counters are
// adjusted by (actual − estimated), which may be a refund, and a usage record
// is appended in the same atomic unit. Idempotent per handle: a handle that
// was already settled or released returns (nil, nil) with no adjustment, so
// retries after a persistence failure are safe.
func (s *Service) Settle(ctx context.Context, handle, mdl string, inTokens, outTokens int64) (*model.UsageRecord, error) {
	if inTokens < 0 {
		inTokens = 0
	}
	if outTokens < 0 {
		outTokens = 0
	}
	if _, known := s.prices.Lookup(mdl); !known {
		metrics.PricingFallbackTotal.Inc()
		s.log.Warn("unknown model pricing, using default entry", zap.String("model", mdl))
	}
	actual := s.prices.CostOf(mdl, inTokens, outTokens)

	now := s.now()
	var rec *model.UsageRecord
	ran, err := s.store.Consume(ctx, handle, func(r *model.Reservation, q *model.QuotaConfig) (*model.UsageRecord, error) {
		if applyRollover(q, now) {
			// the call happened in the now-closed period: its estimate was
			// wiped with the reset and its usage never touches the fresh
			// counters
			metrics.RolloversTotal.Inc()
		} else {
			adjustCounters(q, actual-r.EstimatedCost, (inTokens+outTokens)-r.EstimatedTokens)
		}
		r.State = model.ReservationSettled
		r.UpdatedAt = now

		rec = &model.UsageRecord{
			ID:            util.New(),
			TenantID:      r.TenantID,
			ActorID:       r.ActorID,
			Feature:       r.Feature,
			Model:         mdl,
			InputTokens:   inTokens,
			OutputTokens:  outTokens,
			Cost:          actual,
			ReservationID: r.ID,
			CreatedAt:     now,
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", handle, err)
	}
	if !ran {
		s.log.Debug("settle on consumed handle, no-op", zap.String("reservation", handle))
		return nil, nil
	}

	metrics.SettlementsTotal.Inc()
	return rec, nil
}

// Release refunds the full estimate of a failed call. No usage record is
// written. Idempotent per handle.
func (s *Service) Release(ctx context.Context, handle string) error {
	return s.release(ctx, handle, "caller")
}

func (s *Service) release(ctx context.Context, handle, reason string) error {
	now := s.now()
	ran, err := s.store.Consume(ctx, handle, func(r *model.Reservation, q *model.QuotaConfig) (*model.UsageRecord, error) {
		if applyRollover(q, now) {
			// the estimate was already wiped with the closed period's counters
			metrics.RolloversTotal.Inc()
		} else {
			adjustCounters(q, -r.EstimatedCost, -r.EstimatedTokens)
		}
		r.State = model.ReservationReleased
		r.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("release %s: %w", handle, err)
	}
	if ran {
		metrics.ReleasesTotal.WithLabelValues(reason).Inc()
	}
	return nil
}

// ReleaseStale force-releases open reservations older than maxAge. Backstop
// for callers that died between Reserve and Settle/Release; without it their
// headroom would stay consumed until the period rolls over.
func (s *Service) ReleaseStale(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-maxAge)
	handles, err := s.store.ListStaleOpen(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale reservations: %w", err)
	}

	released := 0
	for _, h := range handles {
		if err := s.release(ctx, h, "janitor"); err != nil {
			s.log.Error("janitor release failed", zap.String("reservation", h), zap.Error(err))
			continue
		}
		s.log.Warn("released stale reservation", zap.String("reservation", h))
		released++
	}
	return released, nil
}

// SetLimit changes a tenant's monthly limits. Runs under the same critical
// section as Reserve so it cannot interleave with a reserve/settle pair.
func (s *Service) SetLimit(ctx context.Context, tenantID, tokenLimit int64, costLimit model.Money) error {
	if tokenLimit < 0 || costLimit < 0 {
		return fmt.Errorf("set limit tenant %d: limits must be non-negative", tenantID)
	}
	now := s.now()
	err := s.store.UpdateQuota(ctx, tenantID, s.defaultConfig(tenantID), func(q *model.QuotaConfig) error {
		if applyRollover(q, now) {
			metrics.RolloversTotal.Inc()
		}
		q.MonthlyTokenLimit = tokenLimit
		q.MonthlyCostLimit = costLimit
		q.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("set limit tenant %d: %w", tenantID, err)
	}
	return nil
}

// GetLimit returns the tenant's quota config as of now: an elapsed period is
// rolled over in the returned view (the row itself stays untouched until the
// next write path locks it). A tenant that never used the metered capability
// gets the default view without a row being created.
func (s *Service) GetLimit(ctx context.Context, tenantID int64) (*model.QuotaConfig, error) {
	q, err := s.store.GetQuota(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get limit tenant %d: %w", tenantID, err)
	}
	if q == nil {
		def := s.defaultConfig(tenantID)
		return &def, nil
	}
	view := *q
	applyRollover(&view, s.now())
	return &view, nil
}

// adjustCounters applies same-period deltas, clamping at zero as a backstop
// against a refund larger than what the period has accumulated.
func adjustCounters(q *model.QuotaConfig, costDelta model.Money, tokenDelta int64) {
	q.CostUsed += costDelta
	if q.CostUsed < 0 {
		q.CostUsed = 0
	}
	q.TokensUsed += tokenDelta
	if q.TokensUsed < 0 {
		q.TokensUsed = 0
	}
}
