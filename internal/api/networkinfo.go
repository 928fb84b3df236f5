package api

import (
	"net"

	"golang.org/x/crypto/blake2b"
)

// NetworkInfo is the read-only model returned to compute for an instance,
// per spec.md §6: an ordered sequence of VIFInfo entries.
type NetworkInfo struct {
	VIFs []VIFInfo `json:"vifs"`
}

// VIFInfo describes one attached interface and the subnets reachable
// through it.
type VIFInfo struct {
	ID        string       `json:"id"`
	Address   string       `json:"address"`
	Network   *NetworkView `json:"network,omitempty"`
	RxtxCap   *float64     `json:"rxtx_cap,omitempty"`
}

// NetworkView is the subset of Network fields exposed in a NetworkInfo.
type NetworkView struct {
	ID                string       `json:"id"`
	Bridge            string       `json:"bridge"`
	Label             string       `json:"label"`
	TenantID          string       `json:"tenant_id,omitempty"`
	Injected          *bool        `json:"injected,omitempty"`
	Subnets           []SubnetInfo `json:"subnets"`
	ShouldCreateBridge *bool       `json:"should_create_bridge,omitempty"`
	ShouldCreateVlan   *bool       `json:"should_create_vlan,omitempty"`
	Vlan              *int64       `json:"vlan,omitempty"`
	BridgeInterface   string       `json:"bridge_interface,omitempty"`
	MultiHost         *bool        `json:"multi_host,omitempty"`
}

// SubnetInfo describes one IPv4 or IPv6 subnet attached to a VIF.
type SubnetInfo struct {
	CIDR       string         `json:"cidr"`
	Gateway    net.IP         `json:"gateway"`
	DHCPServer net.IP         `json:"dhcp_server,omitempty"`
	DNS        []net.IP       `json:"dns"`
	Routes     []RouteInfo    `json:"routes"`
	IPs        []FixedIPInfo  `json:"ips"`
}

// RouteInfo is a single static route advertised on a subnet.
type RouteInfo struct {
	CIDR    string `json:"cidr"`
	Gateway net.IP `json:"gateway"`
}

// FixedIPInfo is the view of a FixedIP exposed in a NetworkInfo, along with
// any FloatingIPs currently pointing at it.
type FixedIPInfo struct {
	Address    net.IP           `json:"address"`
	Version    int              `json:"version"`
	FloatingIPs []FloatingIPRef `json:"floating_ips"`
}

// FloatingIPRef is a minimal floating-IP reference embedded in a
// FixedIPInfo.
type FloatingIPRef struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

// DeriveIPv6 computes the IPv6 global address for a VIF on an IPv6-enabled
// network, per spec.md §6: "derived from (network.cidr_v6, vif.address,
// project_id)". There is no standard EUI-64 mapping that also folds in a
// project id, so the host bits of the address (everything past the
// prefix) are taken from a blake2b digest of the three inputs rather than
// a hand-rolled mixing function —
// collision-resistant and stable across restarts without any shared state.
func DeriveIPv6(cidrV6 string, mac string, projectID string) (net.IP, error) {
	_, network, err := net.ParseCIDR(cidrV6)
	if err != nil {
		return nil, err
	}

	sum := blake2b.Sum256([]byte(cidrV6 + "|" + mac + "|" + projectID))

	addr := make(net.IP, net.IPv6len)
	copy(addr, network.IP.To16())

	prefixBits, _ := network.Mask.Size()
	prefixBytes := prefixBits / 8
	if prefixBytes < net.IPv6len {
		copy(addr[prefixBytes:], sum[:net.IPv6len-prefixBytes])

		// Restore the prefix bits of a partially-covered byte.
		if prefixBits%8 != 0 && len(network.Mask) == net.IPv6len {
			m := network.Mask[prefixBytes]
			addr[prefixBytes] = network.IP[prefixBytes]&m | addr[prefixBytes]&^m
		}
	}

	return addr, nil
}
