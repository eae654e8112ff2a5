package ledger

import (
	"time"

	"github.com/smoradi/quotameter/internal/model"
)

// nextPeriodEnd advances end by whole calendar months until it is strictly
// after now, so the new period is the one that contains now even when several
// periods elapsed with no traffic.
func nextPeriodEnd(end, now time.Time) time.Time {
	for !end.After(now) {
		end = end.AddDate(0, 1, 0)
	}
	return end
}

// firstPeriodEnd is the boundary for a lazily-created config: the first day of
// the month after now, UTC midnight.
func firstPeriodEnd(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// applyRollover resets the counters and advances the boundary when the current
// period has elapsed. Must run inside the tenant's critical section, before
// any limit check. Reports whether a rollover happened.
func applyRollover(q *model.QuotaConfig, now time.Time) bool {
	if q.PeriodEnd.After(now) {
		return false
	}
	q.TokensUsed = 0
	q.CostUsed = 0
	q.PeriodEnd = nextPeriodEnd(q.PeriodEnd, now)
	return true
}
