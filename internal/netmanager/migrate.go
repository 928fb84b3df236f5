package netmanager

import (
	"context"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
)

// reassignFixedIPHosts updates each multi-host fixed ip's recorded owning
// host, the same column AllocateFixedIP sets at allocation time (spec.md
// §4.2) and that the Ownership Router and Floating IP Engine's
// HostResolver both read back — migration must keep it current or a
// later DeallocateFixedIP/AssociateFloatingIP call would route to the
// instance's old host instead of its new one.
func (m *Manager) reassignFixedIPHosts(ctx context.Context, fips []api.FixedIP, host string) error {
	for _, f := range fips {
		n, err := m.db.NetworkGet(ctx, f.NetworkID)
		if err != nil {
			return err
		}

		if !n.MultiHost {
			continue
		}

		if err := m.db.FixedIPSetHost(ctx, f.NetworkID, f.Address, host); err != nil {
			return err
		}
	}

	return nil
}

// MigrateInstanceStart implements spec.md §4.5's migration hand-off:
// unplumb floating IPs on the source host and null each affected
// network's host so the next allocation re-resolves ownership.
func (m *Manager) MigrateInstanceStart(ctx context.Context, instanceUUID uuid.UUID) error {
	fips, err := m.db.FixedIPsByInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}

	addrs := make([]string, len(fips))
	for i, f := range fips {
		addrs[i] = f.Address
	}

	if m.floating != nil && m.variant.SupportsFloatingIPs() {
		if err := m.floating.MigrateInstanceStart(ctx, addrs); err != nil {
			return err
		}
	}

	for _, f := range fips {
		if err := m.db.NetworkForceSetHost(ctx, f.NetworkID, ""); err != nil {
			return err
		}
	}

	return nil
}

// MigrateInstanceFinish implements spec.md §4.5's migration hand-off:
// re-plumb floating IPs on destHost and record destHost as each
// affected network's owner.
func (m *Manager) MigrateInstanceFinish(ctx context.Context, instanceUUID uuid.UUID, destHost string) error {
	fips, err := m.db.FixedIPsByInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}

	addrs := make([]string, len(fips))
	for i, f := range fips {
		addrs[i] = f.Address
	}

	if m.floating != nil && m.variant.SupportsFloatingIPs() {
		if err := m.floating.MigrateInstanceFinish(ctx, addrs, destHost); err != nil {
			return err
		}
	}

	for _, f := range fips {
		if err := m.db.NetworkForceSetHost(ctx, f.NetworkID, destHost); err != nil {
			return err
		}
	}

	return m.reassignFixedIPHosts(ctx, fips, destHost)
}
