// Package metrics exposes the engine's Prometheus series and a
// go-metrics-backed debug endpoint, grounded on syncthing's
// internal/db metrics wrapper and lib/api's /metrics and
// /rest/debug/httpmetrics handlers (spec's ambient observability
// stack; see DESIGN.md).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rcrowley/go-metrics"
)

const namespace = "wizmini"

var (
	// MemoryEstimateBytes mirrors Store.MemoryEstimate() for the
	// active scope (spec §3, §6 memory_estimate).
	MemoryEstimateBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "memory_estimate_bytes",
		Help:      "Estimated in-memory footprint of the active scope's Path Store.",
	}, []string{"scope"})

	// DeltaCount mirrors Store.DeltaCounts() per bucket (spec §3, §6
	// delta_counts).
	DeltaCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "delta_count",
		Help:      "Entries added/updated/deleted since the last snapshot, by bucket.",
	}, []string{"scope", "bucket"})

	// AcquisitionEntriesTotal counts entries acquired by the Walker
	// or Volume Reader (spec §4.3, §4.4).
	AcquisitionEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "acquisition",
		Name:      "entries_total",
		Help:      "Entries acquired during a scope's (re)acquisition, by strategy.",
	}, []string{"scope", "strategy"})

	// AcquisitionSecondsTotal is the cumulative wall-clock time spent
	// in Acquiring and BuildingAccelerators (spec §4.6).
	AcquisitionSecondsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "acquisition",
		Name:      "seconds_total",
		Help:      "Time spent acquiring and finalizing a scope's index, by phase.",
	}, []string{"scope", "phase"})

	// JournalRecordsTotal counts applied change-journal records by
	// reason (spec §4.5).
	JournalRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "records_total",
		Help:      "Change journal records applied, by reason.",
	}, []string{"scope", "reason"})

	// WatchHealthy reports whether live tracking is currently attached
	// (spec §6 watch_status), 1 for healthy and 0 otherwise.
	WatchHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "watch_healthy",
		Help:      "Whether the change journal Source is currently attached and healthy, by mode.",
	}, []string{"scope", "mode"})

	// SearchRequestsTotal counts completed (not cancelled) searches
	// (spec §4.7).
	SearchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Search requests that ran to completion (search_done emitted).",
	})

	// SearchLatencySeconds is a histogram of search_done's took_ms,
	// converted to seconds.
	SearchLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "latency_seconds",
		Help:      "Search request latency from submit_search to search_done.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	})
)

// ObserveSearch records one completed search's latency, mirroring the
// teacher's lib/api request-timing middleware but expressed as a
// Prometheus histogram rather than a manual percentile table.
func ObserveSearch(took time.Duration) {
	SearchRequestsTotal.Inc()
	SearchLatencySeconds.Observe(took.Seconds())
}

// acquisitionTimer returns a go-metrics Timer for phase within scope,
// whose percentile stats /debug/httpmetrics reports the way lib/api's
// metricsMiddleware does for HTTP routes, here applied to acquisition
// phases instead. Timers exist only for phases passed to
// TimeAcquisitionPhase; the Index Coordinator does not call it.
func acquisitionTimer(scopeLabel, phase string) metrics.Timer {
	return metrics.GetOrRegisterTimer(namespace+".acquisition."+scopeLabel+"."+phase, nil)
}

// TimeAcquisitionPhase wraps fn, recording its duration both as a
// go-metrics Timer (for the debug JSON endpoint) and as the
// corresponding Prometheus counter increment.
func TimeAcquisitionPhase(scopeLabel, phase string, fn func()) {
	t := acquisitionTimer(scopeLabel, phase)
	t0 := time.Now()
	fn()
	d := time.Since(t0)
	t.Update(d)
	AcquisitionSecondsTotal.WithLabelValues(scopeLabel, phase).Add(d.Seconds())
}
