package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Reconciliation operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway round-trip duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)
)

func init() {
	prometheus.MustRegister(reconciliationsTotal)
	prometheus.MustRegister(gatewayRequestDuration)
}

func RecordReconciliation(operation, outcome string) {
	reconciliationsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveGatewayRequest(call string, d time.Duration) {
	gatewayRequestDuration.WithLabelValues(call).Observe(d.Seconds())
}
