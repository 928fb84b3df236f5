// Package ipam is the Address Pool Engine: a thin policy layer over
// internal/db's transactional fixed-IP primitives that applies the
// reserved-slot rule of spec.md §4.1 and re-exports the pool-exhaustion
// and collision sentinels under ipam's own names so callers never import
// internal/db directly.
package ipam

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db"
)

// Sentinel errors, re-exported from internal/db under the Address Pool
// Engine's own vocabulary (spec.md §7).
var (
	ErrNoMoreFixedIPs      = db.ErrNoMoreFixedIPs
	ErrFixedIPAlreadyInUse = db.ErrFixedIPAlreadyInUse
	ErrNotFound            = db.ErrNotFound
)

// ReservedSlotPolicy decides, given an address's zero-based index and the
// total count of addresses in the block, whether it should be carved out
// as reserved (gateway, broadcast, DHCP server, etc.) rather than handed
// out by Associate. Topology variants (internal/topology) supply this.
type ReservedSlotPolicy func(index, count int) bool

// Pool is the Address Pool Engine for a single network's fixed-IP block.
type Pool struct {
	db        *db.DB
	networkID uuid.UUID
}

// New returns a Pool bound to networkID.
func New(d *db.DB, networkID uuid.UUID) *Pool {
	return &Pool{db: d, networkID: networkID}
}

// BulkCreate enumerates every host address in cidr and inserts a FixedIP
// row for each, applying policy to decide which are pre-reserved
// (spec.md §4.1 bulk_create).
func (p *Pool) BulkCreate(ctx context.Context, cidr string, policy ReservedSlotPolicy) error {
	addrs, err := hostAddresses(cidr)
	if err != nil {
		return err
	}

	if policy == nil {
		policy = func(int, int) bool { return false }
	}

	return p.db.FixedIPBulkCreate(ctx, p.networkID, addrs, policy)
}

// Associate picks any unallocated FixedIP whose reserved flag equals
// reserved (a VPN caller asks for a reserved slot) and binds it to
// instanceUUID (spec.md §4.1 associate(network_id, instance_uuid,
// reserved)).
func (p *Pool) Associate(ctx context.Context, instanceUUID uuid.UUID, reserved bool) (string, error) {
	addr, err := p.db.FixedIPAssociatePool(ctx, p.networkID, instanceUUID, reserved)
	if err != nil {
		return "", translateErr(err)
	}

	return addr, nil
}

// AssociateAddress binds a specific address to instanceUUID (spec.md
// §4.1 associate(address, network_id, instance_uuid, reserved)).
func (p *Pool) AssociateAddress(ctx context.Context, address string, instanceUUID uuid.UUID, reserved bool) error {
	return translateErr(p.db.FixedIPAssociate(ctx, p.networkID, address, instanceUUID, reserved))
}

// Disassociate clears instance linkage for address (spec.md §4.1
// disassociate).
func (p *Pool) Disassociate(ctx context.Context, address string) error {
	return translateErr(p.db.FixedIPDisassociate(ctx, p.networkID, address))
}

// Get fetches a single FixedIP's current state.
func (p *Pool) Get(ctx context.Context, address string) (api.FixedIP, error) {
	fip, err := p.db.FixedIPGet(ctx, p.networkID, address)
	return fip, translateErr(err)
}

// GetByHost fetches the host-keyed placeholder row reserved for host's
// DHCP listener address, if one has already been allocated (spec.md §5's
// get_dhcp).
func (p *Pool) GetByHost(ctx context.Context, host string) (api.FixedIP, error) {
	fip, err := p.db.FixedIPGetByNetworkHost(ctx, p.networkID, host)
	return fip, translateErr(err)
}

// AssociateHost claims an unallocated, unreserved address for host's DHCP
// listener (spec.md §5's get_dhcp, multi-host case).
func (p *Pool) AssociateHost(ctx context.Context, host string) (string, error) {
	addr, err := p.db.FixedIPAssociateHostPool(ctx, p.networkID, host)
	if err != nil {
		return "", translateErr(err)
	}

	return addr, nil
}

// Counts reports (allocated, reserved, free) for invariant checks
// (spec.md §8 invariant 2).
func (p *Pool) Counts(ctx context.Context) (allocated, reserved, free int, err error) {
	return p.db.NetworkFixedIPCounts(ctx, p.networkID)
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrNoMoreFixedIPs):
		return ErrNoMoreFixedIPs
	case errors.Is(err, db.ErrFixedIPAlreadyInUse):
		return ErrFixedIPAlreadyInUse
	default:
		return err
	}
}

// hostAddresses enumerates every usable host address in cidr, in
// ascending order, including network and broadcast addresses — topology
// variants decide via ReservedSlotPolicy whether the first/last few are
// carved out (spec.md §4.1 treats network/broadcast/gateway reservation
// as a policy concern, not an IPAM one).
func hostAddresses(cidr string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse cidr %q: %w", cidr, err)
	}

	ip = ip.Mask(ipNet.Mask)

	var addrs []string
	for cur := cloneIP(ip); ipNet.Contains(cur); incIP(cur) {
		addrs = append(addrs, cur.String())
	}

	return addrs, nil
}

func cloneIP(ip net.IP) net.IP {
	dup := make(net.IP, len(ip))
	copy(dup, ip)
	return dup
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}
