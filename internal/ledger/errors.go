package ledger

import "errors"

var (
	// ErrQuotaExceeded is the soft denial: the reservation would push the
	// tenant past its monthly limit. Never maps to a 5xx.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnknownReservation means the handle does not exist.
	ErrUnknownReservation = errors.New("unknown reservation")
)
