package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the reconciliation and dispatch pipeline
var (
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of gateway callbacks received, by outcome",
		},
		[]string{"outcome"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Duration of order reconciliation",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Total number of channel delivery attempts, by channel and result",
		},
		[]string{"channel", "result"},
	)

	DeliveriesExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_exhausted_total",
			Help: "Deliveries that failed terminally and await manual resend",
		},
		[]string{"channel"},
	)

	DispatchQueueLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_lag",
			Help: "Consumer lag of the dispatch queue reader",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(DispatchAttemptsTotal)
	prometheus.MustRegister(DeliveriesExhaustedTotal)
	prometheus.MustRegister(DispatchQueueLag)
}
