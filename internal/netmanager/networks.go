package netmanager

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/ipam"
	"github.com/hostfleet/fleetnet/internal/topology"
)

// CreateNetworks implements spec.md §4.4's create-time algorithm by
// delegating to the configured topology.Variant, then persists each
// resulting Network and bulk-creates its FixedIP rows under the
// variant's reserved-slot policy (spec.md §4.1).
func (m *Manager) CreateNetworks(ctx context.Context, req topology.CreateRequest) ([]api.Network, error) {
	existing, err := m.allExistingSubnets(ctx)
	if err != nil {
		return nil, err
	}

	req.ExistingSubnets = existing

	networks, err := m.variant.CreateNetworks(ctx, req)
	if err != nil {
		return nil, err
	}

	bottom, top := m.variant.ReservedSlots()

	for _, n := range networks {
		if err := m.db.NetworkCreate(ctx, n); err != nil {
			return nil, fmt.Errorf("Failed to persist network %s: %w", n.Label, err)
		}

		pool := ipam.New(m.db, n.ID)
		if err := pool.BulkCreate(ctx, n.CIDR, func(index, count int) bool {
			return index < bottom || count-index <= top
		}); err != nil {
			return nil, fmt.Errorf("Failed to bulk-create fixed ips for network %s: %w", n.Label, err)
		}
	}

	return networks, nil
}

// allExistingSubnets is used to populate CreateRequest.ExistingSubnets so
// the topology variant can reject overlapping ranges (spec.md §4.4).
func (m *Manager) allExistingSubnets(ctx context.Context) ([]*net.IPNet, error) {
	ids, err := m.db.AllNetworkIDs(ctx)
	if err != nil {
		return nil, err
	}

	subnets := make([]*net.IPNet, 0, len(ids))
	for _, id := range ids {
		n, err := m.db.NetworkGet(ctx, id)
		if err != nil {
			return nil, err
		}

		if n.CIDR == "" {
			continue
		}

		_, ipNet, err := net.ParseCIDR(n.CIDR)
		if err != nil {
			continue
		}

		subnets = append(subnets, ipNet)
	}

	return subnets, nil
}

// DeleteNetwork removes a Network and its FixedIP rows, tearing down the
// driver plumbing first.
func (m *Manager) DeleteNetwork(ctx context.Context, id uuid.UUID) error {
	n, err := m.db.NetworkGet(ctx, id)
	if err != nil {
		return err
	}

	if m.driver != nil {
		if err := m.driver.TeardownNetworkOnHost(ctx, n); err != nil {
			return fmt.Errorf("Failed to tear down network driver state: %w", err)
		}
	}

	return m.db.DeleteNetwork(ctx, id)
}

// SetupNetworksOnHost fans out per-network setup across networkIDs
// through the worker pool, identically to allocate_for_instance's
// fan-out (spec.md §5).
func (m *Manager) SetupNetworksOnHost(ctx context.Context, networkIDs []uuid.UUID) error {
	tasks := make([]func(), len(networkIDs))
	errs := make([]error, len(networkIDs))

	for i, id := range networkIDs {
		i, id := i, id
		tasks[i] = func() {
			n, err := m.db.NetworkGet(ctx, id)
			if err != nil {
				errs[i] = err
				return
			}

			errs[i] = m.setupNetworkOnHost(ctx, n)
		}
	}

	m.pool.RunAll(tasks)

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// ValidateNetworks implements the supplemented validate_networks
// operation: walks requested, raising if a uuid does not resolve or if
// an explicitly-requested fixed IP is already allocated to a different
// instance.
func (m *Manager) ValidateNetworks(ctx context.Context, requested []uuid.UUID, requestedAddresses map[uuid.UUID]string, instanceUUID uuid.UUID) error {
	for _, id := range requested {
		n, err := m.db.NetworkGet(ctx, id)
		if err != nil {
			return fmt.Errorf("network %s does not resolve: %w", id, err)
		}

		addr, ok := requestedAddresses[id]
		if !ok || addr == "" {
			continue
		}

		fip, err := m.db.FixedIPGet(ctx, n.ID, addr)
		if err != nil {
			continue // Address not yet materialized is fine; allocation will fail later if truly absent.
		}

		if fip.Allocated && (fip.InstanceUUID == nil || *fip.InstanceUUID != instanceUUID) {
			return fmt.Errorf("fixed ip %s on network %s is already in use: %w", addr, n.ID, ErrFixedIPAlreadyInUse)
		}
	}

	return nil
}

// InstanceUUIDsByIP implements the supplemented get_instance_uuids_by_ip
// reverse lookup used by the DHCP bridge callback path.
func (m *Manager) InstanceUUIDsByIP(ctx context.Context, address string) ([]uuid.UUID, error) {
	ids, err := m.db.AllNetworkIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out []uuid.UUID
	for _, id := range ids {
		fip, err := m.db.FixedIPGet(ctx, id, address)
		if err != nil {
			continue
		}

		if fip.InstanceUUID != nil {
			out = append(out, *fip.InstanceUUID)
		}
	}

	return out, nil
}
