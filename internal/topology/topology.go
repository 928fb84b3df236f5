// Package topology implements the three network-manager variants of
// spec.md §4.4 — Flat, FlatDHCP, VLAN — as a shared Variant interface so
// internal/netmanager's Manager actor stays variant-agnostic.
package topology

import (
	"context"
	"fmt"
	"math"
	"net"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
)

// Kind names one of the three manager variants.
type Kind string

const (
	KindFlat     Kind = "flat"
	KindFlatDHCP Kind = "flat_dhcp"
	KindVLAN     Kind = "vlan"
)

// Variant is the policy surface the Network Manager core delegates to,
// per spec.md §4.4's comparison table.
type Variant interface {
	Kind() Kind

	// ReservedSlots returns the bottom/top reserved-address counts for a
	// network's bulk_create (spec.md §4.1).
	ReservedSlots() (bottom, top int)

	// RunsDHCP reports whether this variant provisions a DHCP listener.
	RunsDHCP() bool

	// SupportsFloatingIPs reports whether floating-IP operations are
	// live (true) or stubbed to no-ops (false, Flat only).
	SupportsFloatingIPs() bool

	// ReaperEnabled reports whether the fixed-IP disassociation timeout
	// reaper runs for this variant (disabled for Flat: "its leases are
	// externally managed").
	ReaperEnabled() bool

	// ProjectScoped reports whether network selection at allocation time
	// is scoped to the caller's project (VLAN only).
	ProjectScoped() bool

	// CreateNetworks carves req into one or more api.Network rows ready
	// for persistence, per spec.md §4.4's create-time algorithms.
	CreateNetworks(ctx context.Context, req CreateRequest) ([]api.Network, error)
}

// CreateRequest carries the operator-supplied parameters of
// create_networks (spec.md §4.4), reusing internal/config's typed
// accessors for defaults.
type CreateRequest struct {
	Label           string
	CIDR            string
	CIDRv6          string
	Bridge          string
	BridgeInterface string
	DNS             []string
	ProjectID       string
	VPN             bool
	MultiHost       bool
	ExistingSubnets []*net.IPNet // Used to reject overlap, spec.md §4.4.
}

// ErrVLANRangeExhausted is returned when num_networks+vlan_start would
// exceed the maximum VLAN tag (spec.md §4.4, "validate num_networks +
// vlan_start ≤ 4094").
var ErrVLANRangeExhausted = fmt.Errorf("vlan range exhausted: num_networks + vlan_start exceeds 4094")

// ErrCIDRTooSmall is returned when the supplied CIDR cannot hold
// num_networks subnets of network_size addresses each.
var ErrCIDRTooSmall = fmt.Errorf("cidr too small for requested num_networks * network_size")

// ErrSubnetOverlapsSupernet is returned when a candidate subnet falls
// inside an existing network's range.
var ErrSubnetOverlapsSupernet = fmt.Errorf("candidate subnet overlaps an existing network's supernet")

// ErrSupernetOverlapsSubnet is returned when an existing network's range
// falls inside the candidate subnet.
var ErrSupernetOverlapsSubnet = fmt.Errorf("existing network overlaps the candidate subnet")

// NewVariant constructs the Variant for kind, wired to cfg for its
// tunables (spec.md §6).
func NewVariant(kind Kind, cfg config.NetworkConfig) (Variant, error) {
	switch kind {
	case KindFlat:
		return &flat{cfg: cfg}, nil
	case KindFlatDHCP:
		return &flatDHCP{cfg: cfg}, nil
	case KindVLAN:
		return &vlan{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("Unknown topology variant %q", kind)
	}
}

// warnNetworkSizeBit computes the network_size warning bit described in
// spec.md §4.4's "if network_size > cidr.size/num_networks, warn and
// shrink": the number of host bits network_size actually needs.
func warnNetworkSizeBit(networkSize int64) int {
	return int(math.Ceil(math.Log2(float64(networkSize))))
}
