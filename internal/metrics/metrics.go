package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "boothpay"

var (
	// ChargeTotal counts charge calls by result (created, cached, or an error kind)
	ChargeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "charge_total",
		Help:      "Charge calls by result.",
	}, []string{"result"})

	// ReconcileTotal counts reconciliation attempts by mapped outcome and result
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Reconciliation attempts by mapped gateway outcome and resulting booking status.",
	}, []string{"outcome", "result"})

	// ReviewTotal counts bookings routed to manual review by reason
	ReviewTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_total",
		Help:      "Bookings routed to REVIEW by reason.",
	}, []string{"reason"})

	// GatewayDuration observes gateway call latency by operation
	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Payment gateway call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})

	// TxRetries counts serializable transaction retries
	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_serialization_retries_total",
		Help:      "Serializable transactions retried after a serialization failure.",
	})

	// NotifyFailures counts post-commit notifier errors
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_failures_total",
		Help:      "Paid notifications that failed after commit.",
	})
)
