// Package cluster tracks the fleet of network-manager processes that
// together own a deployment's networks: which host is alive, and a
// Notifier that fans a callback out to every peer so the Ownership
// Router (internal/netmanager) can decide local-vs-forward (spec.md
// §4.2) and the Floating IP Engine can detect a stale peer during
// migration hand-off.
package cluster

import "time"

// NodeInfo describes one network-manager process in the fleet, adapted
// from lxd/db/cluster's NodeInfo + heartbeat staleness check.
type NodeInfo struct {
	ID      int64
	Name    string
	Address string
	Heartbeat time.Time
}

// IsOffline reports whether the node's last heartbeat predates
// offlineThreshold — the teacher's db.NodeInfo.IsOffline, reused verbatim
// for the Ownership Router's "target host's service-group heartbeat is
// stale" degradation check (spec.md §4.2).
func (n NodeInfo) IsOffline(offlineThreshold time.Duration) bool {
	return time.Now().After(n.Heartbeat.Add(offlineThreshold))
}
