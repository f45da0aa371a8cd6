package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "histcache"
	engineSubsystem  = "engine"
)

// Operation labels.
const (
	opGet       = "get"
	opSet       = "set"
	opCacheOnly = "get_cache_only"
)

// Fetch status labels.
const (
	fetchSuccess   = "success"
	fetchError     = "error"
	fetchMalformed = "malformed"
)

// Metrics holds the engine's Prometheus collectors.
//
// Thread-safety: all operations are safe for concurrent use.
type Metrics struct {
	// RequestsTotal counts public calls.
	// Labels: operation (get, set, get_cache_only)
	RequestsTotal *prometheus.CounterVec

	// StrategiesTotal counts the strategy each successful call resolved to.
	// Labels: operation, strategy (cache_only, bootstrap, incremental,
	// idempotent, fast_path)
	StrategiesTotal *prometheus.CounterVec

	// FetchesTotal counts source round trips.
	// Labels: kind (full, incremental), status (success, error, malformed)
	FetchesTotal *prometheus.CounterVec

	// FetchDurationSeconds measures source round trip latency.
	// Labels: kind
	FetchDurationSeconds *prometheus.HistogramVec

	// FetchedEntriesTotal counts entries received from the source.
	FetchedEntriesTotal prometheus.Counter

	// SharedFetchesTotal counts calls whose fetch result was shared with
	// another concurrent caller for the same report.
	SharedFetchesTotal prometheus.Counter

	// ConflictsTotal counts redelivered entries whose content differs from
	// the cached entry with the same sequence number.
	ConflictsTotal prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
//
// Panics if reg already holds collectors with the same names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "requests_total",
				Help:      "Total engine calls by operation",
			},
			[]string{"operation"},
		),
		StrategiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "strategies_total",
				Help:      "Resolved sync strategies by operation",
			},
			[]string{"operation", "strategy"},
		),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "fetches_total",
				Help:      "Source fetches by kind and status",
			},
			[]string{"kind", "status"},
		),
		FetchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Source fetch latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"kind"},
		),
		FetchedEntriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "fetched_entries_total",
			Help:      "Entries received from the source",
		}),
		SharedFetchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "shared_fetches_total",
			Help:      "Calls that shared an in-flight fetch with another caller",
		}),
		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "conflicts_total",
			Help:      "Redelivered entries whose content differs from the cached copy",
		}),
	}
}
