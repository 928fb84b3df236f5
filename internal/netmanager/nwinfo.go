package netmanager

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
)

// GetInstanceNwInfo is the query counterpart to AllocateForInstance:
// assembles the same NetworkInfo model from already-persisted rows,
// without touching the driver or DNS (spec.md §6's get_instance_nw_info).
// Its one write is dhcpServerAddress claiming a host's DHCP address the
// first time it is asked for on a multi-host network.
func (m *Manager) GetInstanceNwInfo(ctx context.Context, instanceUUID uuid.UUID, instanceHost string, rxtxFactor float64) (api.NetworkInfo, error) {
	return m.buildNetworkInfo(ctx, instanceUUID, instanceHost, rxtxFactor)
}

// buildNetworkInfo assembles the NetworkInfo model of spec.md §6: an
// ordered sequence of VIFInfo entries, each carrying its Network's
// subnets and the FixedIPs allocated to this instance on that network.
func (m *Manager) buildNetworkInfo(ctx context.Context, instanceUUID uuid.UUID, instanceHost string, rxtxFactor float64) (api.NetworkInfo, error) {
	vifs, err := m.db.VirtualInterfacesByInstance(ctx, instanceUUID)
	if err != nil {
		return api.NetworkInfo{}, err
	}

	fips, err := m.db.FixedIPsByInstance(ctx, instanceUUID)
	if err != nil {
		return api.NetworkInfo{}, err
	}

	fipsByNetwork := make(map[uuid.UUID][]api.FixedIP, len(fips))
	for _, f := range fips {
		fipsByNetwork[f.NetworkID] = append(fipsByNetwork[f.NetworkID], f)
	}

	info := api.NetworkInfo{VIFs: make([]api.VIFInfo, 0, len(vifs))}

	for _, vif := range vifs {
		n, err := m.db.NetworkGet(ctx, vif.NetworkID)
		if err != nil {
			return api.NetworkInfo{}, err
		}

		var address string
		for _, f := range fipsByNetwork[vif.NetworkID] {
			if f.VIFID != nil && *f.VIFID == vif.ID {
				address = f.Address
				break
			}
		}

		view, err := m.buildNetworkView(ctx, n, fipsByNetwork[vif.NetworkID], vif.MACAddress, instanceHost)
		if err != nil {
			return api.NetworkInfo{}, err
		}

		vi := api.VIFInfo{
			ID:      vif.ID.String(),
			Address: address,
			Network: &view,
		}

		if rxtxFactor != 0 {
			rxtxCap := rxtxFactor
			vi.RxtxCap = &rxtxCap
		}

		info.VIFs = append(info.VIFs, vi)
	}

	return info, nil
}

func (m *Manager) buildNetworkView(ctx context.Context, n api.Network, fips []api.FixedIP, vifMAC, instanceHost string) (api.NetworkView, error) {
	subnet, err := m.buildSubnet(ctx, n, fips, vifMAC, instanceHost)
	if err != nil {
		return api.NetworkView{}, err
	}

	view := api.NetworkView{
		ID:              n.ID.String(),
		Bridge:          n.Bridge,
		Label:           n.Label,
		TenantID:        n.ProjectID,
		BridgeInterface: n.BridgeInterface,
		Subnets:         []api.SubnetInfo{subnet},
	}

	if n.VlanTag != nil {
		view.Vlan = n.VlanTag
	}

	multiHost := n.MultiHost
	view.MultiHost = &multiHost

	return view, nil
}

func (m *Manager) buildSubnet(ctx context.Context, n api.Network, fips []api.FixedIP, vifMAC, instanceHost string) (api.SubnetInfo, error) {
	subnet := api.SubnetInfo{
		CIDR:    n.CIDR,
		Gateway: net.ParseIP(n.Gateway),
		Routes:  nil,
	}

	dhcpServer, err := m.dhcpServerAddress(ctx, n, instanceHost)
	if err != nil {
		return api.SubnetInfo{}, fmt.Errorf("Failed to resolve dhcp server address: %w", err)
	}

	subnet.DHCPServer = dhcpServer

	for _, dns := range n.DNS {
		if ip := net.ParseIP(dns); ip != nil {
			subnet.DNS = append(subnet.DNS, ip)
		}
	}

	for _, f := range fips {
		fi, err := m.buildFixedIPInfo(ctx, f)
		if err != nil {
			return api.SubnetInfo{}, err
		}

		subnet.IPs = append(subnet.IPs, fi)
	}

	if n.CIDRv6 != "" {
		v6, err := api.DeriveIPv6(n.CIDRv6, vifMAC, n.ProjectID)
		if err != nil {
			return api.SubnetInfo{}, fmt.Errorf("Failed to derive ipv6 address: %w", err)
		}

		subnet.IPs = append(subnet.IPs, api.FixedIPInfo{Address: v6, Version: 6})
	}

	return subnet, nil
}

func (m *Manager) buildFixedIPInfo(ctx context.Context, f api.FixedIP) (api.FixedIPInfo, error) {
	fi := api.FixedIPInfo{Address: net.ParseIP(f.Address), Version: 4}

	floating, err := m.db.FloatingIPsByFixedAddress(ctx, f.Address)
	if err != nil {
		return api.FixedIPInfo{}, err
	}

	for _, fip := range floating {
		fi.FloatingIPs = append(fi.FloatingIPs, api.FloatingIPRef{Address: fip.Address, Type: fip.Pool})
	}

	return fi, nil
}
