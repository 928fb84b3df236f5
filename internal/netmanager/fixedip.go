package netmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/ipam"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/metrics"
)

// allocateFixedIPArgs mirrors rpcapi's allocate_fixed_ip request struct so
// a forwarded call decodes into the same shape on the owning host.
type allocateFixedIPArgs struct {
	InstanceUUID uuid.UUID `json:"instance_uuid"`
	NetworkID    uuid.UUID `json:"network_id"`
	Address      string    `json:"address"`
	VPN          bool      `json:"vpn"`
	DisplayName  string    `json:"display_name"`
	Host         string    `json:"host"`
}

// AllocateFixedIP implements spec.md §4.3's allocate_fixed_ip. The Network
// Ownership Router (spec.md §4.2) decides whether networkID is owned by
// this host; a non-local decision forwards the whole operation so the VIF
// link, DNS fanout and driver setup all run on the host that actually owns
// the network's plumbing, instead of running here against a network this
// host has no business touching.
func (m *Manager) AllocateFixedIP(ctx context.Context, instanceUUID, networkID uuid.UUID, address string, vpn bool, displayName, instanceHost string) (string, error) {
	n, err := m.db.NetworkGet(ctx, networkID)
	if err != nil {
		return "", err
	}

	decision, err := m.resolveHost(ctx, n, instanceHost)
	if err != nil {
		return "", err
	}

	args := allocateFixedIPArgs{
		InstanceUUID: instanceUUID,
		NetworkID:    networkID,
		Address:      address,
		VPN:          vpn,
		DisplayName:  displayName,
		Host:         instanceHost,
	}

	result, err := m.dispatch(ctx, decision, "allocate_fixed_ip", args, func(ctx context.Context) (any, error) {
		return m.allocateFixedIPLocal(ctx, n, instanceUUID, address, vpn, displayName, instanceHost)
	})
	if err != nil {
		return "", err
	}

	if decision.Local {
		return result.(string), nil
	}

	return decodeForwardedString(result)
}

func (m *Manager) allocateFixedIPLocal(ctx context.Context, n api.Network, instanceUUID uuid.UUID, address string, vpn bool, displayName, instanceHost string) (string, error) {
	networkID := n.ID
	pool := ipam.New(m.db, networkID)

	var addr string
	var err error
	if address != "" {
		if err := pool.AssociateAddress(ctx, address, instanceUUID, vpn); err != nil {
			return "", translateIPAMErr(err)
		}

		addr = address
	} else {
		addr, err = pool.Associate(ctx, instanceUUID, vpn)
		if err != nil {
			return "", translateIPAMErr(err)
		}
	}

	if instanceHost != "" {
		if err := m.db.FixedIPSetHost(ctx, networkID, addr, instanceHost); err != nil {
			return "", err
		}
	}

	vifs, err := m.db.VirtualInterfacesByInstance(ctx, instanceUUID)
	if err != nil {
		return "", err
	}

	var vif *uuid.UUID
	for _, v := range vifs {
		if v.NetworkID == networkID {
			id := v.ID
			vif = &id
			break
		}
	}

	if vif == nil {
		return "", fmt.Errorf("no virtual interface found for instance %s on network %s", instanceUUID, networkID)
	}

	if err := m.db.FixedIPSetVIF(ctx, networkID, addr, *vif); err != nil {
		return "", err
	}

	if m.secgroups != nil {
		if err := m.secgroups.RefreshMembership(ctx, instanceUUID); err != nil {
			logger.Warn("security group refresh failed", logger.Ctx{"instance": instanceUUID, "err": err})
		}
	}

	if m.dns != nil {
		m.dns.AddInstanceRecords(displayName, instanceUUID.String(), addr, n.ProjectID)
	}

	if err := m.setupNetworkOnHost(ctx, n); err != nil {
		return "", err
	}

	return addr, nil
}

// DeallocateFixedIP implements spec.md §4.3's deallocate_fixed_ip: inverse
// of allocate, with an optional forced DHCP-release packet so the external
// DHCP bridge wakes up and calls back ReleaseFixedIP. The owning host is
// the one recorded on the fixed ip itself at allocation time (spec.md
// §4.2); a stale/offline owner degrades to the pure-DB mutation instead of
// failing outright, per the Router's teardown degradation rule.
func (m *Manager) DeallocateFixedIP(ctx context.Context, networkID uuid.UUID, address string, teardown bool) error {
	fip, err := m.db.FixedIPGet(ctx, networkID, address)
	if err != nil {
		return err
	}

	n, err := m.db.NetworkGet(ctx, networkID)
	if err != nil {
		return err
	}

	instanceHost := ""
	if fip.Host != nil {
		instanceHost = *fip.Host
	}

	decision, err := m.resolveHost(ctx, n, instanceHost)
	if err != nil {
		return err
	}

	args := struct {
		NetworkID uuid.UUID `json:"network_id"`
		Address   string    `json:"address"`
		Teardown  bool      `json:"teardown"`
	}{NetworkID: networkID, Address: address, Teardown: teardown}

	_, err = m.dispatchTeardown(ctx, decision, "deallocate_fixed_ip", args,
		func(ctx context.Context) (any, error) {
			return nil, m.deallocateFixedIPLocal(ctx, n, fip, address, teardown)
		},
		func(ctx context.Context) (any, error) {
			return nil, m.disassociateFixedIP(ctx, networkID, address)
		})

	return err
}

func (m *Manager) deallocateFixedIPLocal(ctx context.Context, n api.Network, fip api.FixedIP, address string, teardown bool) error {
	if m.cfg.ForceDHCPRelease() && m.dhcp != nil && fip.VIFID != nil {
		vif, err := m.db.VirtualInterfaceGet(ctx, *fip.VIFID)
		if err == nil {
			if err := m.dhcp.SendRelease(ctx, vif.MACAddress, address); err != nil {
				return fmt.Errorf("Failed to send dhcp release: %w", err)
			}
		}
	}

	if err := m.disassociateFixedIP(ctx, n.ID, address); err != nil {
		return err
	}

	if teardown && m.driver != nil {
		return m.driver.TeardownNetworkOnHost(ctx, n)
	}

	return nil
}

// LeaseFixedIP implements the DHCP bridge callback lease_fixed_ip:
// "sets leased=true and warns if allocated=false". Raises if the address
// has no associated instance.
func (m *Manager) LeaseFixedIP(ctx context.Context, networkID uuid.UUID, address string) error {
	fip, err := m.db.FixedIPGet(ctx, networkID, address)
	if err != nil {
		return err
	}

	if fip.InstanceUUID == nil {
		return fmt.Errorf("fixed ip %s has no associated instance", address)
	}

	if !fip.Allocated {
		logger.Warn("leasing a fixed ip that is not allocated", logger.Ctx{"network": networkID, "address": address})
	}

	return m.db.FixedIPLease(ctx, networkID, address)
}

// ReleaseFixedIP implements the DHCP bridge callback release_fixed_ip:
// sets leased=false and, if allocated=false, also disassociates. Raises
// if the address has no associated instance.
func (m *Manager) ReleaseFixedIP(ctx context.Context, networkID uuid.UUID, address string) error {
	fip, err := m.db.FixedIPGet(ctx, networkID, address)
	if err != nil {
		return err
	}

	if fip.InstanceUUID == nil {
		return fmt.Errorf("fixed ip %s has no associated instance", address)
	}

	return m.db.FixedIPRelease(ctx, networkID, address)
}

// AddFixedIPToInstance is the targeted variant of AllocateFixedIP: one
// specific network, no caller-chosen address.
func (m *Manager) AddFixedIPToInstance(ctx context.Context, instanceUUID, networkID uuid.UUID, displayName, instanceHost string) (string, error) {
	return m.AllocateFixedIP(ctx, instanceUUID, networkID, "", false, displayName, instanceHost)
}

// RemoveFixedIPFromInstance is the targeted variant of DeallocateFixedIP,
// looking up the address owned by instanceUUID on networkID.
func (m *Manager) RemoveFixedIPFromInstance(ctx context.Context, instanceUUID, networkID uuid.UUID) error {
	fips, err := m.db.FixedIPsByInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}

	for _, fip := range fips {
		if fip.NetworkID == networkID {
			return m.DeallocateFixedIP(ctx, networkID, fip.Address, true)
		}
	}

	return fmt.Errorf("instance %s has no fixed ip on network %s: %w", instanceUUID, networkID, db.ErrNotFound)
}

func translateIPAMErr(err error) error {
	switch {
	case errors.Is(err, ipam.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ipam.ErrNoMoreFixedIPs):
		metrics.PoolExhaustion.WithLabelValues("fixed_ip").Inc()
		return ErrNoMoreFixedIPs
	case errors.Is(err, ipam.ErrFixedIPAlreadyInUse):
		return ErrFixedIPAlreadyInUse
	default:
		return err
	}
}
