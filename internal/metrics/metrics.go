// Package metrics exposes the ambient observability counters/gauges
// carried alongside every operation in this repo: pool exhaustion,
// scheduler retries, and reaper sweep counts. Built on
// github.com/prometheus/client_golang, a teacher go.mod dependency
// (previously only pulled in indirectly by lxd/metrics's vendored
// dependencies) promoted here to a direct one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

// Registry is the process-wide collector registry; cmd/netfleetctl and
// internal/rpcapi's HTTP server expose it at /metrics.
func Registry() *prometheus.Registry { return registry }

var (
	// PoolExhaustion counts fixed-IP (NoMoreFixedIPs) and floating-IP pool
	// exhaustion, labeled by the resource pool that ran dry.
	PoolExhaustion = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetnet",
		Name:      "pool_exhaustion_total",
		Help:      "Count of address/host pool exhaustion errors by pool kind.",
	}, []string{"pool"})

	// SchedulerRetries counts FilterScheduler retry-budget increments,
	// labeled by outcome ("ok" or "exhausted").
	SchedulerRetries = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetnet",
		Name:      "scheduler_retries_total",
		Help:      "Count of scheduling retry attempts by outcome.",
	}, []string{"outcome"})

	// SchedulerPlacements counts instances the FilterScheduler placed.
	SchedulerPlacements = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "fleetnet",
		Name:      "scheduler_placements_total",
		Help:      "Count of instances successfully placed by the filter scheduler.",
	})

	// ReaperSweeps counts FixedIPs disassociated by the periodic reaper.
	ReaperSweeps = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "fleetnet",
		Name:      "reaper_disassociated_total",
		Help:      "Count of fixed IPs disassociated by the periodic reaper.",
	})
)
