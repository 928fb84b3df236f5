package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/cluster"
)

func TestNodeInfo_IsOffline(t *testing.T) {
	fresh := cluster.NodeInfo{Name: "a", Heartbeat: time.Now()}
	assert.False(t, fresh.IsOffline(time.Minute))

	stale := cluster.NodeInfo{Name: "b", Heartbeat: time.Now().Add(-time.Hour)}
	assert.True(t, stale.IsOffline(time.Minute))
}

func TestMemStore_HeartbeatAndNodes(t *testing.T) {
	store := cluster.NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Heartbeat(ctx, "host-a", "10.0.0.1:8443"))
	require.NoError(t, store.Heartbeat(ctx, "host-b", "10.0.0.2:8443"))

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestNewNotifier_ExcludesSelf(t *testing.T) {
	store := cluster.NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Heartbeat(ctx, "self", "10.0.0.1:8443"))
	require.NoError(t, store.Heartbeat(ctx, "peer", "10.0.0.2:8443"))

	notifier := cluster.NewNotifier(store, "self", time.Minute, cluster.NotifyAlive)

	var visited []string
	err := notifier(func(n cluster.NodeInfo) error {
		visited = append(visited, n.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"peer"}, visited)
}

func TestNewNotifier_AllPolicyAbortsOnFailure(t *testing.T) {
	store := cluster.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Heartbeat(ctx, "self", "10.0.0.1:8443"))
	require.NoError(t, store.Heartbeat(ctx, "peer", "10.0.0.2:8443"))

	notifier := cluster.NewNotifier(store, "self", time.Minute, cluster.NotifyAll)

	err := notifier(func(n cluster.NodeInfo) error {
		return assert.AnError
	})
	assert.Error(t, err)
}
