package model

import "time"

type ReservationState string

const (
	ReservationOpen     ReservationState = "open"
	ReservationSettled  ReservationState = "settled"
	ReservationReleased ReservationState = "released"
)

func (s ReservationState) String() string { return string(s) }

func (s ReservationState) Valid() bool {
	return s == ReservationOpen || s == ReservationSettled || s == ReservationReleased
}

// Reservation is a provisional charge against a tenant's quota, made before the
// true cost of a metered call is known. Every open reservation is consumed
// exactly once: settled with the actual token counts, or released (refunded).
type Reservation struct {
	ID              string           `db:"id"` // ULID, the caller's handle
	TenantID        int64            `db:"tenant_id"`
	ActorID         *int64           `db:"actor_id"` // nullable user id
	Feature         string           `db:"feature"`
	EstimatedCost   Money            `db:"estimated_cost"`
	EstimatedTokens int64            `db:"estimated_tokens"` // 0 = no token estimate was available
	State           ReservationState `db:"state"`
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}
