package model

import "time"

// UsageRecord is one settled metered call. Rows are append-only: written once
// at settlement and never mutated or deleted (audit trail).
type UsageRecord struct {
	ID            string    `db:"id"` // ULID
	TenantID      int64     `db:"tenant_id"`
	ActorID       *int64    `db:"actor_id"`
	Feature       string    `db:"feature"`
	Model         string    `db:"model"`
	InputTokens   int64     `db:"input_tokens"`
	OutputTokens  int64     `db:"output_tokens"`
	Cost          Money     `db:"cost"`
	ReservationID string    `db:"reservation_id"` // correlation back to the reservation
	CreatedAt     time.Time `db:"created_at"`
}

func (r *UsageRecord) TotalTokens() int64 { return r.InputTokens + r.OutputTokens }

// UsageEnvelope is the payload published to Kafka for the ClickHouse mirror.
type UsageEnvelope struct {
	ID            string    `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	Feature       string    `json:"feature"`
	Model         string    `json:"model"`
	InputTokens   int64     `json:"input_tokens"`
	OutputTokens  int64     `json:"output_tokens"`
	CostMicros    int64     `json:"cost_micros"`
	ReservationID string    `json:"reservation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *UsageRecord) Envelope() UsageEnvelope {
	return UsageEnvelope{
		ID:            r.ID,
		TenantID:      r.TenantID,
		ActorID:       r.ActorID,
		Feature:       r.Feature,
		Model:         r.Model,
		InputTokens:   r.InputTokens,
		OutputTokens:  r.OutputTokens,
		CostMicros:    r.Cost.Micros(),
		ReservationID: r.ReservationID,
		CreatedAt:     r.CreatedAt,
	}
}

// UsageTotals is an aggregate over usage records.
type UsageTotals struct {
	InputTokens  int64 `db:"input_tokens"`
	OutputTokens int64 `db:"output_tokens"`
	Cost         Money `db:"cost"`
	Records      int64 `db:"records"`
}

func (t UsageTotals) TotalTokens() int64 { return t.InputTokens + t.OutputTokens }

// UsageSummary is the dashboard view for one tenant.
type UsageSummary struct {
	TenantID    int64
	Totals      UsageTotals
	TokenLimit  int64
	CostLimit   Money
	TokensUsed  int64
	CostUsed    Money
	PctUsed     float64
	PeriodEnd   time.Time
	ByFeature   map[string]UsageTotals
	ByModel     map[string]UsageTotals
	Recent      []UsageRecord
	WindowStart time.Time
	WindowEnd   time.Time
}
