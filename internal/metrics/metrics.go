package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Escrow engine counters and histograms, partitioned by operation.

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Total escrow operations by outcome",
	}, []string{"operation", "status"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Escrow operation processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	ValueMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "engine",
		Name:      "value_moved_total",
		Help:      "Total value moved by kind (lock, release, refund, fee, emergency)",
	}, []string{"kind"})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "antiabuse",
		Name:      "rejections_total",
		Help:      "Rate limiter rejections by reason",
	}, []string{"reason"})

	AddressStatesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "antiabuse",
		Name:      "address_states_pruned_total",
		Help:      "Expired limiter states removed by the janitor",
	})

	ReentrancyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "guard",
		Name:      "rejections_total",
		Help:      "Mutating calls aborted by the reentrancy guard",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Escrow events published by name and sink",
	}, []string{"event", "sink"})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Subsystem: "events",
		Name:      "received_total",
		Help:      "Escrow events gossiped by peers, by name",
	}, []string{"event"})

	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow",
		Subsystem: "engine",
		Name:      "paused",
		Help:      "1 while the contract is paused",
	})
)
