package ledger

import (
	"context"
	"time"

	"github.com/smoradi/quotameter/internal/model"
)

// Store is the durable state behind the ledger. Implementations must make each
// method a single atomic unit: the callback runs inside the tenant's critical
// section (row lock / per-tenant mutex) and every write in the method commits
// or rolls back together.
type Store interface {
	// Reserve ensures the tenant has a quota config (creating def if absent),
	// locks it, runs decide against the live counters, and inserts res if
	// decide returns nil. A non-nil decide error aborts with no mutation
	// beyond rollover.
	Reserve(ctx context.Context, def model.QuotaConfig, decide func(q *model.QuotaConfig) error, res *model.Reservation) error

	// Consume locks the reservation and the tenant's quota config, and runs
	// finalize only if the reservation is still open. finalize mutates the
	// counters and transitions the reservation state; a returned usage record
	// is appended (with an outbox event) in the same unit. Consume reports
	// whether finalize ran: false means the handle was already consumed.
	Consume(ctx context.Context, handle string, finalize func(r *model.Reservation, q *model.QuotaConfig) (*model.UsageRecord, error)) (bool, error)

	// UpdateQuota locks the tenant's config (creating def if absent) and
	// applies fn to it.
	UpdateQuota(ctx context.Context, tenantID int64, def model.QuotaConfig, fn func(q *model.QuotaConfig) error) error

	// GetQuota reads a tenant's config without locking. Returns nil when the
	// tenant has no config yet.
	GetQuota(ctx context.Context, tenantID int64) (*model.QuotaConfig, error)

	// ListStaleOpen returns handles of open reservations created before cutoff.
	ListStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}
