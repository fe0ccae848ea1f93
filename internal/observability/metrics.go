package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecore_orders_total",
			Help: "Orders by status reached",
		},
		[]string{"status"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecore_bookings_total",
			Help: "Bookings created by initial status",
		},
		[]string{"status"},
	)

	CapacityConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecore_capacity_conflicts_total",
			Help: "Reservations rejected for insufficient capacity",
		},
	)

	FulfillmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecore_fulfillments_total",
			Help: "Orders fulfilled",
		},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecore_refunds_total",
			Help: "Orders refunded",
		},
	)

	CartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecore_cart_mutations_total",
			Help: "Cart snapshot mutations by kind",
		},
		[]string{"op"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storecore_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storecore_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecore_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
