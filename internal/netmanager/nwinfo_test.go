package netmanager_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/netmanager"
	"github.com/hostfleet/fleetnet/internal/topology"
)

func TestManager_GetInstanceNwInfo_DerivesIPv6(t *testing.T) {
	m, _ := newTestManager(t, &fakeDriver{}, nil)
	ctx := context.Background()

	ns, err := m.CreateNetworks(ctx, topology.CreateRequest{
		Label: "priv", CIDR: "10.0.0.0/29", CIDRv6: "fd00::/64", Bridge: "br0",
	})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	n := ns[0]

	instanceUUID := uuid.New()
	info, err := m.AllocateForInstance(ctx, netmanager.InstanceRequest{
		InstanceUUID:      instanceUUID,
		RequestedNetworks: []uuid.UUID{n.ID},
	})
	require.NoError(t, err)
	require.Len(t, info.VIFs, 1)

	subnets := info.VIFs[0].Network.Subnets
	require.Len(t, subnets, 1)

	var sawV6 bool
	for _, ip := range subnets[0].IPs {
		if ip.Version == 6 {
			sawV6 = true
			assert.NotNil(t, ip.Address)
		}
	}
	assert.True(t, sawV6)

	again, err := m.GetInstanceNwInfo(ctx, instanceUUID, "", 0)
	require.NoError(t, err)
	assert.Nil(t, again.VIFs[0].RxtxCap)
}
