package model

import "time"

// QuotaConfig holds a tenant's monthly limits and the live counters enforcement
// runs against. One row per tenant; mutated only inside the tenant's critical
// section (row lock or per-tenant mutex).
type QuotaConfig struct {
	TenantID          int64     `db:"tenant_id"`
	MonthlyTokenLimit int64     `db:"monthly_token_limit"`
	MonthlyCostLimit  Money     `db:"monthly_cost_limit"`
	TokensUsed        int64     `db:"tokens_used"`
	CostUsed          Money     `db:"cost_used"`
	PeriodEnd         time.Time `db:"period_end"` // current accounting period closes at this date (UTC)
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// PctUsed returns cost consumption as a percentage of the cost limit.
func (q *QuotaConfig) PctUsed() float64 {
	if q.MonthlyCostLimit <= 0 {
		return 0
	}
	return float64(q.CostUsed) / float64(q.MonthlyCostLimit) * 100
}
