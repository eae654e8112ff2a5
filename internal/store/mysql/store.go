// Package mysql implements the ledger store on MySQL. The per-tenant critical
// section is the quota_configs row lock: every protocol operation runs in one
// transaction that takes `SELECT ... FOR UPDATE` on the tenant's row before
// touching counters, reservations, usage records, or the outbox.
package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/repository"
)

type Store struct {
	db           *sqlx.DB
	quotas       repository.QuotaRepository
	reservations repository.ReservationRepository
	usage        repository.UsageRepository
	outbox       repository.OutboxRepository
}

var _ ledger.Store = (*Store)(nil)

func New(
	db *sqlx.DB,
	quotas repository.QuotaRepository,
	reservations repository.ReservationRepository,
	usage repository.UsageRepository,
	outbox repository.OutboxRepository,
) *Store {
	return &Store{
		db:           db,
		quotas:       quotas,
		reservations: reservations,
		usage:        usage,
		outbox:       outbox,
	}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Reserve(ctx context.Context, def model.QuotaConfig, decide func(q *model.QuotaConfig) error, res *model.Reservation) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.quotas.EnsureConfig(ctx, tx, def); err != nil {
			return fmt.Errorf("ensure quota config: %w", err)
		}
		q, err := s.quotas.GetForUpdate(ctx, tx, res.TenantID)
		if err != nil {
			return fmt.Errorf("quota get for update: %w", err)
		}
		if err := decide(q); err != nil {
			// rolls back: a denied reserve leaves no mutation behind
			return err
		}
		if err := s.quotas.Save(ctx, tx, q); err != nil {
			return fmt.Errorf("quota save: %w", err)
		}
		if err := s.reservations.Insert(ctx, tx, res); err != nil {
			return fmt.Errorf("reservation insert: %w", err)
		}
		return nil
	})
}

func (s *Store) Consume(ctx context.Context, handle string, finalize func(r *model.Reservation, q *model.QuotaConfig) (*model.UsageRecord, error)) (bool, error) {
	var ran bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := s.reservations.GetForUpdate(ctx, tx, handle)
		if err != nil {
			return fmt.Errorf("reservation get for update: %w", err)
		}
		if res == nil {
			return ledger.ErrUnknownReservation
		}
		if res.State != model.ReservationOpen {
			return nil // already consumed, commit nothing
		}

		q, err := s.quotas.GetForUpdate(ctx, tx, res.TenantID)
		if err != nil {
			return fmt.Errorf("quota get for update: %w", err)
		}

		rec, err := finalize(res, q)
		if err != nil {
			return err
		}

		ok, err := s.reservations.MarkConsumed(ctx, tx, handle, res.State)
		if err != nil {
			return fmt.Errorf("reservation mark %s: %w", res.State, err)
		}
		if !ok {
			// protected by the row lock above, so this cannot happen
			return fmt.Errorf("reservation %s: lost open state mid-transaction", handle)
		}
		if err := s.quotas.Save(ctx, tx, q); err != nil {
			return fmt.Errorf("quota save: %w", err)
		}

		if rec != nil {
			if err := s.usage.Insert(ctx, tx, rec); err != nil {
				return fmt.Errorf("usage insert: %w", err)
			}
			payload, err := json.Marshal(rec.Envelope())
			if err != nil {
				return fmt.Errorf("marshal usage envelope: %w", err)
			}
			if err := s.outbox.Insert(ctx, tx, "usage_record", rec.ID, repository.UsageSettledTopic, payload); err != nil {
				return fmt.Errorf("outbox insert: %w", err)
			}
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ran, nil
}

func (s *Store) UpdateQuota(ctx context.Context, tenantID int64, def model.QuotaConfig, fn func(q *model.QuotaConfig) error) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.quotas.EnsureConfig(ctx, tx, def); err != nil {
			return fmt.Errorf("ensure quota config: %w", err)
		}
		q, err := s.quotas.GetForUpdate(ctx, tx, tenantID)
		if err != nil {
			return fmt.Errorf("quota get for update: %w", err)
		}
		if err := fn(q); err != nil {
			return err
		}
		return s.quotas.Save(ctx, tx, q)
	})
}

func (s *Store) GetQuota(ctx context.Context, tenantID int64) (*model.QuotaConfig, error) {
	return s.quotas.Get(ctx, tenantID)
}

func (s *Store) ListStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.reservations.ListStaleOpen(ctx, cutoff, limit)
}
