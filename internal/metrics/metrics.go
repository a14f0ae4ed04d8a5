package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guild_counters"

var (
	// SweepsTotal counts completed sweeps per trigger source.
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Completed sweeps per trigger source and outcome.",
	}, []string{"trigger", "status"})

	// SweepDuration records full sweep duration.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Full sweep duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
	}, []string{"trigger"})

	// CommunitiesSwept counts per-community sweep outcomes.
	CommunitiesSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "communities_swept_total",
		Help:      "Per-community sweep outcomes.",
	}, []string{"status"})

	// Renames counts display surface rename attempts by outcome.
	Renames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renames_total",
		Help:      "Display surface rename attempts by outcome.",
	}, []string{"status"})

	// DanglingSurfaces tracks configured surfaces that no longer exist.
	DanglingSurfaces = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dangling_surfaces",
		Help:      "Configured display surfaces missing on the platform, per guild.",
	}, []string{"guild"})

	// APICalls counts raw platform API calls.
	APICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_calls_total",
		Help:      "Raw platform API call counts.",
	}, []string{"endpoint", "status"})

	// APIDuration records platform API latency.
	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_duration_seconds",
		Help:      "Platform API call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"endpoint"})

	// EventsReceived counts gateway events that reached the trigger filter.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Gateway events received by kind.",
	}, []string{"kind"})

	// EventsFiltered counts events rejected per filter stage.
	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_filtered_total",
		Help:      "Gateway events rejected per filter stage.",
	}, []string{"stage", "reason"})

	// SweepsCoalesced counts resweep requests absorbed by a pending debounce timer.
	SweepsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_coalesced_total",
		Help:      "Resweep requests absorbed by a pending debounce timer.",
	})

	// SweepsMerged counts sweep requests folded into an identical queued sweep.
	SweepsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_merged_total",
		Help:      "Sweep requests folded into an identical queued sweep.",
	})

	// SweepsDropped counts sweep requests discarded without running.
	SweepsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_dropped_total",
		Help:      "Sweep requests discarded without running.",
	}, []string{"reason"})

	// SweepQueueDepth tracks current sweep queue length.
	SweepQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sweep_queue_depth",
		Help:      "Current sweep queue buffer depth.",
	})

	// Authorizations counts permission decisions.
	Authorizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorizations_total",
		Help:      "Permission decisions by action and result.",
	}, []string{"action", "result"})

	// ConfiguredCommunities tracks communities with a counter configuration.
	ConfiguredCommunities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "configured_communities",
		Help:      "Communities with an active counter configuration.",
	})

	// DBSizeBytes tracks bbolt on-disk file size.
	DBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_size_bytes",
		Help:      "bbolt on-disk file size in bytes.",
	})
)
