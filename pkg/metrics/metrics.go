package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the process-wide metrics registry, served by the loopback
// listener in internal/app.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// EventsIngested counts events accepted and committed to the store.
	EventsIngested = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_events_ingested_total",
		Help: "Events validated, deduplicated and committed.",
	})

	// EventsRejected counts dropped events by validation reason.
	EventsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_events_rejected_total",
		Help: "Events dropped during validation, by reason.",
	}, []string{"reason"})

	// EventsDuplicate counts events skipped because the id was already stored.
	EventsDuplicate = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_events_duplicate_total",
		Help: "Events skipped as duplicates of stored ids.",
	})

	// CommitBatchSize observes events per committed write batch.
	CommitBatchSize = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "harbor_commit_batch_size",
		Help:    "Events per committed write batch.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	// StoreHalted is 1 while ingestion is halted on a store failure.
	StoreHalted = factory.NewGauge(prometheus.GaugeOpts{
		Name: "harbor_store_halted",
		Help: "1 while ingestion is halted waiting for store recovery.",
	})

	// RelayState tracks connection state per relay (one series per state).
	RelayState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harbor_relay_state",
		Help: "Relay connection state (1 for the current state).",
	}, []string{"relay", "state"})

	// RelayEvents counts raw events surfaced per relay.
	RelayEvents = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_relay_events_total",
		Help: "Raw events surfaced by each relay.",
	}, []string{"relay"})

	// RelayQuarantines counts quarantine activations per relay.
	RelayQuarantines = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_relay_quarantines_total",
		Help: "Times a relay was quarantined for excess invalid events.",
	}, []string{"relay"})

	// ProtocolErrors counts dropped frames and other protocol anomalies.
	ProtocolErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_protocol_errors_total",
		Help: "Protocol-level anomalies recovered locally, by kind.",
	}, []string{"kind"})

	// QueueDepth is the current ingest queue depth.
	QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "harbor_ingest_queue_depth",
		Help: "Raw events waiting in the ingest queue.",
	})

	// QueueDropped counts enqueue failures on a full queue.
	QueueDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_ingest_queue_dropped_total",
		Help: "Raw events dropped because the ingest queue was full.",
	})

	// ChangeSetsDelivered counts coalesced notifications delivered.
	ChangeSetsDelivered = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_changesets_delivered_total",
		Help: "Coalesced change notifications delivered to subscribers.",
	})

	// ChangeSetsMerged counts lossy merges on slow subscribers.
	ChangeSetsMerged = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_changesets_merged_total",
		Help: "Pending change notifications merged due to slow consumers.",
	})

	// StatusGC counts status events removed by the retention pass.
	StatusGC = factory.NewCounter(prometheus.CounterOpts{
		Name: "harbor_status_gc_total",
		Help: "Expired status events removed by retention.",
	})
)
