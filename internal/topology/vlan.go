package topology

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
)

// vlan is the VLAN manager variant: no pre-existing bridge, the service
// creates both the VLAN tag and its bridge, runs DHCP, supports floating
// IPs, enables the reaper, and scopes network selection per-project
// (spec.md §4.4).
type vlan struct {
	cfg config.NetworkConfig
}

func (v *vlan) Kind() Kind { return KindVLAN }

func (v *vlan) ReservedSlots() (int, int) {
	return 3, 1 + int(v.cfg.CntVPNClients())
}

func (v *vlan) RunsDHCP() bool            { return true }
func (v *vlan) SupportsFloatingIPs() bool { return true }
func (v *vlan) ReaperEnabled() bool       { return true }
func (v *vlan) ProjectScoped() bool       { return true }

// CreateNetworks implements spec.md §4.4's VLAN create-time algorithm:
// validate the VLAN range, validate the CIDR can hold num_networks
// subnets of network_size addresses, carve num_networks equal subnets,
// and assign vlan/vpn-port/bridge/gateway/vpn-private-address per
// subnet. No DHCP start address is computed or stored.
func (v *vlan) CreateNetworks(ctx context.Context, req CreateRequest) ([]api.Network, error) {
	if req.BridgeInterface == "" {
		return nil, fmt.Errorf("vlan topology requires a bridge interface")
	}

	numNetworks := v.cfg.NumNetworks()
	if numNetworks < 1 {
		numNetworks = 1
	}

	vlanStart := v.cfg.VlanStart()
	if vlanStart+numNetworks > 4094 {
		return nil, ErrVLANRangeExhausted
	}

	networkSize := v.cfg.NetworkSize()

	_, requested, err := net.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse cidr %q: %w", req.CIDR, err)
	}

	ones, bits := requested.Mask.Size()
	available := int64(1) << uint(bits-ones)

	if available < networkSize*numNetworks {
		return nil, ErrCIDRTooSmall
	}

	subnets, err := splitEqual(requested, numNetworks)
	if err != nil {
		return nil, err
	}

	vpnStart := v.cfg.VPNStart()

	networks := make([]api.Network, 0, numNetworks)

	for i, subnet := range subnets {
		vlanTag := vlanStart + int64(i)
		vpnPort := vpnStart + int64(i)

		vpnPrivate := nthHostAddr(subnet, 2)
		gw := nthHostAddr(subnet, 1)

		n := api.Network{
			ID:              uuid.New(),
			Label:           fmt.Sprintf("%s-%d", req.Label, i),
			CIDR:            subnet.String(),
			CIDRv6:          req.CIDRv6,
			Gateway:         gw.String(),
			Bridge:          fmt.Sprintf("br%d", vlanTag),
			BridgeInterface: req.BridgeInterface,
			DNS:             req.DNS,
			VlanTag:         &vlanTag,
			VPNPrivateAddr:  vpnPrivate.String(),
			VPNPublicPort:   &vpnPort,
			MultiHost:       req.MultiHost,
			ProjectID:       req.ProjectID,
			CreatedAt:       time.Now(),
		}

		networks = append(networks, n)
	}

	return networks, nil
}

// splitEqual divides requested into n equally-sized subnets.
func splitEqual(requested *net.IPNet, n int64) ([]*net.IPNet, error) {
	ones, bits := requested.Mask.Size()
	hostBits := bits - ones

	extraBits := hostBitsFor(n)
	if extraBits > hostBits {
		return nil, ErrCIDRTooSmall
	}

	newPrefix := ones + extraBits
	mask := net.CIDRMask(newPrefix, bits)
	blockSize := int64(1) << uint(bits-newPrefix)

	subnets := make([]*net.IPNet, 0, n)
	base := make(net.IP, len(requested.IP))
	copy(base, requested.IP)

	cur := base
	for i := int64(0); i < n; i++ {
		ip := make(net.IP, len(cur))
		copy(ip, cur)
		subnets = append(subnets, &net.IPNet{IP: ip, Mask: mask})
		cur = advance(cur, blockSize)
	}

	return subnets, nil
}

// nthHostAddr returns the address n past the network address of subnet
// (subnet[n] in spec.md's notation).
func nthHostAddr(subnet *net.IPNet, n int64) net.IP {
	return advance(subnet.IP, n)
}
