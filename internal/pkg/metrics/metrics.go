package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveriesTotal counts finished delivery attempts by outcome:
	// success, retrying, failed.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_delivery_duration_seconds",
		Help:    "Duration of outbound webhook HTTP attempts.",
		Buckets: prometheus.DefBuckets,
	})

	// InboundEventsTotal counts provider callbacks by provider and outcome:
	// accepted, rejected, ignored, duplicate.
	InboundEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_inbound_events_total",
		Help: "Inbound provider events by provider and outcome.",
	}, []string{"provider", "outcome"})

	RetrySweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_retry_sweeps_total",
		Help: "Retry scheduler sweep runs.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_dispatch_queue_depth",
		Help: "Tasks waiting in the dispatch queue.",
	})
)
