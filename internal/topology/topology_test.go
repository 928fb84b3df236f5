package topology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/topology"
)

func defaultConfig(t *testing.T) config.NetworkConfig {
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	return cfg
}

func TestFlat_ReservedSlots(t *testing.T) {
	v, err := topology.NewVariant(topology.KindFlat, defaultConfig(t))
	require.NoError(t, err)

	bottom, top := v.ReservedSlots()
	assert.Equal(t, 2, bottom)
	assert.Equal(t, 1, top)
	assert.False(t, v.RunsDHCP())
	assert.False(t, v.SupportsFloatingIPs())
	assert.False(t, v.ReaperEnabled())
}

func TestFlat_CreateNetworks_RequiresBridge(t *testing.T) {
	v, err := topology.NewVariant(topology.KindFlat, defaultConfig(t))
	require.NoError(t, err)

	_, err = v.CreateNetworks(context.Background(), topology.CreateRequest{Label: "net1", CIDR: "10.0.0.0/29"})
	assert.Error(t, err)
}

func TestFlat_CreateNetworks_S1(t *testing.T) {
	v, err := topology.NewVariant(topology.KindFlat, defaultConfig(t))
	require.NoError(t, err)

	nets, err := v.CreateNetworks(context.Background(), topology.CreateRequest{
		Label: "net1", CIDR: "10.0.0.0/29", Bridge: "br0",
	})
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "10.0.0.1", nets[0].Gateway)
}

func TestVLAN_ReservedSlots(t *testing.T) {
	v, err := topology.NewVariant(topology.KindVLAN, defaultConfig(t))
	require.NoError(t, err)

	bottom, top := v.ReservedSlots()
	assert.Equal(t, 3, bottom)
	assert.Equal(t, 1, top) // cnt_vpn_clients defaults to 0.
	assert.True(t, v.ProjectScoped())
}

func TestVLAN_CreateNetworks_S2(t *testing.T) {
	cfg, err := config.Load(map[string]string{
		"num_networks": "1",
		"network_size": "16",
		"vlan_start":   "100",
	})
	require.NoError(t, err)

	v, err := topology.NewVariant(topology.KindVLAN, cfg)
	require.NoError(t, err)

	nets, err := v.CreateNetworks(context.Background(), topology.CreateRequest{
		Label: "net1", CIDR: "10.0.0.0/24", BridgeInterface: "eth0",
	})
	require.NoError(t, err)
	require.Len(t, nets, 1)

	n := nets[0]
	require.NotNil(t, n.VlanTag)
	assert.Equal(t, int64(100), *n.VlanTag)
	assert.Equal(t, "br100", n.Bridge)
}

func TestVLAN_CreateNetworks_RangeExhausted(t *testing.T) {
	cfg, err := config.Load(map[string]string{
		"num_networks": "2",
		"vlan_start":   "4093",
	})
	require.NoError(t, err)

	v, err := topology.NewVariant(topology.KindVLAN, cfg)
	require.NoError(t, err)

	_, err = v.CreateNetworks(context.Background(), topology.CreateRequest{
		Label: "net1", CIDR: "10.0.0.0/16", BridgeInterface: "eth0",
	})
	assert.ErrorIs(t, err, topology.ErrVLANRangeExhausted)
}

func TestFlatDHCP_CreateNetworks_ShrinksNetworkSize(t *testing.T) {
	cfg, err := config.Load(map[string]string{
		"num_networks": "4",
		"network_size": "1000", // Larger than available/num_networks for a /24.
	})
	require.NoError(t, err)

	v, err := topology.NewVariant(topology.KindFlatDHCP, cfg)
	require.NoError(t, err)

	nets, err := v.CreateNetworks(context.Background(), topology.CreateRequest{
		Label: "net1", CIDR: "10.0.0.0/24", Bridge: "br0",
	})
	require.NoError(t, err)
	require.Len(t, nets, 1)
}
