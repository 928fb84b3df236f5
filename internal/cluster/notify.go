package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/hostfleet/fleetnet/internal/logger"
)

// Notifier invokes hook against every peer in the fleet except localName,
// adapted from lxd/cluster/notify.go's Notifier type and NotifyPolicy.
type Notifier func(hook func(NodeInfo) error) error

// NotifyPolicy controls how NewNotifier treats peers that appear offline,
// mirroring the teacher's NotifierPolicy.
type NotifyPolicy int

const (
	// NotifyAll requires every peer to be reachable; the first failure
	// aborts the fan-out.
	NotifyAll NotifyPolicy = iota
	// NotifyAlive skips peers whose heartbeat is stale.
	NotifyAlive
	// NotifyBestEffort attempts every peer and collects failures without
	// aborting.
	NotifyBestEffort
)

// NewNotifier builds a Notifier over store's current membership,
// excluding localName, per policy.
func NewNotifier(store Store, localName string, offlineThreshold time.Duration, policy NotifyPolicy) Notifier {
	return func(hook func(NodeInfo) error) error {
		nodes, err := store.Nodes(context.Background())
		if err != nil {
			return fmt.Errorf("Failed to list cluster members: %w", err)
		}

		var errs []error

		for _, n := range nodes {
			if n.Name == localName {
				continue
			}

			if n.IsOffline(offlineThreshold) {
				switch policy {
				case NotifyAll:
					return fmt.Errorf("Peer %q is offline", n.Name)
				case NotifyAlive:
					logger.Warn("skipping offline peer", logger.Ctx{"node": n.Name})
					continue
				case NotifyBestEffort:
					// Still attempt the call below.
				}
			}

			if err := hook(n); err != nil {
				if policy == NotifyAll {
					return fmt.Errorf("Failed notifying peer %q: %w", n.Name, err)
				}

				errs = append(errs, fmt.Errorf("peer %q: %w", n.Name, err))
			}
		}

		if len(errs) > 0 && policy != NotifyBestEffort {
			return fmt.Errorf("%d of %d peers failed: %w", len(errs), len(nodes), errs[0])
		}

		return nil
	}
}
