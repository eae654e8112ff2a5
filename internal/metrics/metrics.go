package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qmeter_reservations_total",
			Help: "Quota reservations by outcome",
		},
		[]string{"result"}, // granted|denied
	)

	SettlementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qmeter_settlements_total",
			Help: "Reservations settled with actual usage",
		},
	)

	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qmeter_releases_total",
			Help: "Reservations released (refunded) by reason",
		},
		[]string{"reason"}, // caller|janitor
	)

	RolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qmeter_period_rollovers_total",
			Help: "Monthly period rollovers applied",
		},
	)

	PricingFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qmeter_pricing_fallback_total",
			Help: "Settlements priced with the default entry due to unknown model",
		},
	)

	UsageIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qmeter_usage_ingested_total",
			Help: "Usage records mirrored into ClickHouse",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ReservationsTotal,
		SettlementsTotal,
		ReleasesTotal,
		RolloversTotal,
		PricingFallbackTotal,
		UsageIngestedTotal,
	)
}
