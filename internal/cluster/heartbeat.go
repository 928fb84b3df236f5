package cluster

import (
	"context"
	"time"

	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/task"
)

// HeartbeatTask returns an internal/task.Func that records store's
// liveness for (localName, localAddress) on every tick, the same
// heartbeat-refresh role lxd/cluster/heartbeat.go's Heartbeat plays for
// dqlite cluster membership.
func HeartbeatTask(store Store, localName, localAddress string) task.Func {
	return func(ctx context.Context) {
		if err := store.Heartbeat(ctx, localName, localAddress); err != nil {
			logger.Warn("Failed to record heartbeat", logger.Ctx{"err": err})
		}
	}
}

// DefaultOfflineThreshold is used when no explicit threshold is
// configured, matching the teacher's default cluster offline window.
const DefaultOfflineThreshold = 20 * time.Second
