package topology

import (
	"context"
	"fmt"
	"net"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/logger"
)

// flatDHCP is the FlatDHCP manager variant: the service creates the
// bridge itself and runs a DHCP listener; floating IPs and the reaper
// are both enabled (spec.md §4.4).
type flatDHCP struct {
	cfg config.NetworkConfig
}

func (v *flatDHCP) Kind() Kind                { return KindFlatDHCP }
func (v *flatDHCP) ReservedSlots() (int, int) { return 2, 1 }
func (v *flatDHCP) RunsDHCP() bool            { return true }
func (v *flatDHCP) SupportsFloatingIPs() bool { return true }
func (v *flatDHCP) ReaperEnabled() bool       { return true }
func (v *flatDHCP) ProjectScoped() bool       { return false }

func (v *flatDHCP) CreateNetworks(ctx context.Context, req CreateRequest) ([]api.Network, error) {
	if req.Bridge == "" {
		return nil, fmt.Errorf("flat_dhcp topology requires a bridge name")
	}

	networkSize := v.cfg.NetworkSize()

	_, requested, err := net.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse cidr %q: %w", req.CIDR, err)
	}

	ones, bits := requested.Mask.Size()
	available := int64(1) << uint(bits-ones)

	numNetworks := v.cfg.NumNetworks()
	if numNetworks < 1 {
		numNetworks = 1
	}

	size := networkSize
	if size > available/numNetworks {
		// spec.md §4.4: "if network_size > cidr.size/num_networks, warn
		// and shrink".
		size = available / numNetworks
		logger.Warn("network_size exceeds cidr size / num_networks, shrinking", logger.Ctx{
			"network_size": networkSize,
			"prefix_bits":  32 - warnNetworkSizeBit(networkSize),
			"size":         size,
		})
	}

	subnet, err := nextFreeSubnet(requested, size, req.ExistingSubnets)
	if err != nil {
		return nil, err
	}

	n := singleNetwork(req, subnet)
	return []api.Network{n}, nil
}

// nextFreeSubnet walks requested in blocks of subnetSize addresses and
// returns the first one that doesn't overlap any existing network,
// checking both overlap directions (spec.md §4.4).
func nextFreeSubnet(requested *net.IPNet, subnetSize int64, existing []*net.IPNet) (*net.IPNet, error) {
	_, bits := requested.Mask.Size()

	prefixLen := bits - hostBitsFor(subnetSize)
	mask := net.CIDRMask(prefixLen, bits)

	base := make(net.IP, len(requested.IP))
	copy(base, requested.IP)

	cur := &net.IPNet{IP: base, Mask: mask}

	for requested.Contains(cur.IP) {
		if err := checkNoOverlap(cur, existing); err == nil {
			return cur, nil
		}

		cur = &net.IPNet{IP: advance(cur.IP, subnetSize), Mask: mask}
	}

	return nil, ErrCIDRTooSmall
}

func hostBitsFor(size int64) int {
	bits := 0
	for (int64(1) << uint(bits)) < size {
		bits++
	}

	return bits
}

func advance(ip net.IP, n int64) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)

	for i := len(out) - 1; i >= 0 && n > 0; i-- {
		sum := int64(out[i]) + n
		out[i] = byte(sum & 0xff)
		n = sum >> 8
	}

	return out
}
