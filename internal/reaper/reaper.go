// Package reaper implements the Periodic Reaper of spec.md §4.7: a
// scheduled sweep that disassociates FixedIPs whose deallocation grace
// period has elapsed, built on internal/task's Schedule driver.
package reaper

import (
	"context"
	"time"

	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/metrics"
	"github.com/hostfleet/fleetnet/internal/task"
	"github.com/hostfleet/fleetnet/internal/topology"
)

// Reaper periodically disassociates stale FixedIPs. The Flat variant
// disables this entirely ("its leases are externally managed").
type Reaper struct {
	db      *db.DB
	cfg     config.NetworkConfig
	enabled bool
}

// New builds a Reaper that no-ops if variant.ReaperEnabled() is false.
func New(d *db.DB, cfg config.NetworkConfig, variant topology.Variant) *Reaper {
	return &Reaper{db: d, cfg: cfg, enabled: variant.ReaperEnabled()}
}

// Sweep runs one reaping pass: compute cutoff = now - fixed_ip_disassociate_timeout,
// bulk-disassociate, and log the count (spec.md §4.7, scenario S6). A
// disabled Reaper is a silent no-op, so it can still be wired into a
// task.Group unconditionally.
func (r *Reaper) Sweep(ctx context.Context) {
	if !r.enabled {
		return
	}

	cutoff := time.Now().Add(-r.cfg.FixedIPDisassociateTimeout())

	count, err := r.db.ReapDisassociate(ctx, cutoff)
	if err != nil {
		logger.Error("fixed ip reaper sweep failed", logger.Ctx{"err": err})
		return
	}

	if count > 0 {
		logger.Info("reaped stale fixed ips", logger.Ctx{"count": count, "cutoff": cutoff})
		metrics.ReaperSweeps.Add(float64(count))
	}
}

// Schedule returns the task.Schedule this Reaper should run on: every
// fixed_ip_disassociate_timeout/2 (so a lease can't outlive the timeout
// by more than half the grace period before being caught), with a
// one-minute floor so a very short timeout in tests doesn't spin.
func (r *Reaper) Schedule() task.Schedule {
	interval := r.cfg.FixedIPDisassociateTimeout() / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	return task.Every(interval)
}

// Start registers Sweep on group under Schedule's cadence. Callers
// start/stop the whole group together with the manager's other
// periodic tasks (spec.md §5: "Periodic tasks are serialized by the
// enclosing scheduler").
func (r *Reaper) Start(group *task.Group) {
	group.Add(r.Sweep, r.Schedule())
}
