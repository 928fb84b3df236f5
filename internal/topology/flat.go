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

// flat is the Flat manager variant: bridge must already exist on the
// host, no DHCP, no floating IPs, reaper disabled (spec.md §4.4).
type flat struct {
	cfg config.NetworkConfig
}

func (v *flat) Kind() Kind                { return KindFlat }
func (v *flat) ReservedSlots() (int, int) { return 2, 1 }
func (v *flat) RunsDHCP() bool            { return false }
func (v *flat) SupportsFloatingIPs() bool { return false }
func (v *flat) ReaperEnabled() bool       { return false }
func (v *flat) ProjectScoped() bool       { return false }

func (v *flat) CreateNetworks(ctx context.Context, req CreateRequest) ([]api.Network, error) {
	if req.Bridge == "" {
		return nil, fmt.Errorf("flat topology requires a bridge name")
	}

	_, ipNet, err := net.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse cidr %q: %w", req.CIDR, err)
	}

	if err := checkNoOverlap(ipNet, req.ExistingSubnets); err != nil {
		return nil, err
	}

	return []api.Network{singleNetwork(req, ipNet)}, nil
}

func singleNetwork(req CreateRequest, ipNet *net.IPNet) api.Network {
	gw := firstHostAddr(ipNet)

	return api.Network{
		ID:              uuid.New(),
		Label:           req.Label,
		CIDR:            req.CIDR,
		CIDRv6:          req.CIDRv6,
		Gateway:         gw.String(),
		Bridge:          req.Bridge,
		BridgeInterface: req.BridgeInterface,
		DNS:             req.DNS,
		MultiHost:       req.MultiHost,
		ProjectID:       req.ProjectID,
		CreatedAt:       time.Now(),
	}
}

// firstHostAddr returns the first usable address in ipNet (one past the
// network address), used as the default gateway.
func firstHostAddr(ipNet *net.IPNet) net.IP {
	ip := make(net.IP, len(ipNet.IP))
	copy(ip, ipNet.IP)

	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}

	return ip
}

// checkNoOverlap rejects candidate if it overlaps any existing subnet in
// either direction (spec.md §4.4: "both rejected with distinct errors").
func checkNoOverlap(candidate *net.IPNet, existing []*net.IPNet) error {
	for _, other := range existing {
		if other.Contains(candidate.IP) {
			return ErrSubnetOverlapsSupernet
		}

		if candidate.Contains(other.IP) {
			return ErrSupernetOverlapsSubnet
		}
	}

	return nil
}
