// Package metrics exposes Prometheus instrumentation for the presentation
// pipeline: escrow depth per named table, webhook delivery outcomes, and
// sweep timing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EscrowDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_escrow_depth",
		Help: "Number of entries currently held in each named escrow table.",
	}, []string{"table"})

	NoticesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_notices_processed_total",
		Help: "Total number of presentation notices consumed from the notification queue.",
	})

	PresentationsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_presentations_validated_total",
		Help: "Total number of presentations validated by schema family, by outcome.",
	}, []string{"family", "outcome"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_webhook_deliveries_total",
		Help: "Total number of webhook delivery attempts by action and outcome.",
	}, []string{"action", "outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_webhook_delivery_seconds",
		Help:    "Duration from enqueue to acknowledged webhook delivery.",
		Buckets: prometheus.DefBuckets,
	})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_sweep_duration_seconds",
		Help:    "Duration of a single escrow sweep cycle, by processor.",
		Buckets: prometheus.DefBuckets,
	}, []string{"processor"})

	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_sweeps_total",
		Help: "Total number of pipeline sweep cycles performed.",
	})

	RevocationsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_revocations_confirmed_total",
		Help: "Total number of credentials observed transitioning to a revoked TEL state.",
	})
)
