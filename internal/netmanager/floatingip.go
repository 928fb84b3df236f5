package netmanager

import (
	"context"
	"errors"

	"github.com/hostfleet/fleetnet/internal/api"
)

// ErrFloatingIPsNotSupported is returned when the configured topology
// variant carries no Floating IP Engine (spec.md §4.1: Flat supports no
// floating IPs).
var ErrFloatingIPsNotSupported = errors.New("floating ips are not supported by this network variant")

// associateFloatingIPArgs and disassociateFloatingIPArgs mirror rpcapi's
// request structs for the same two ops, so a forwarded call decodes into
// the same shape on the owning host.
type associateFloatingIPArgs struct {
	FloatingAddr   string `json:"floating_address"`
	FixedNetworkID string `json:"fixed_network_id"`
	FixedAddr      string `json:"fixed_address"`
	Interface      string `json:"interface"`
}

type disassociateFloatingIPArgs struct {
	FloatingAddr string `json:"floating_address"`
}

// AssociateFloatingIP implements spec.md §4.5's associate_floating_ip. The
// fixed IP's owning host is resolved the same way the Floating IP Engine's
// HostResolver would, then routed through the Ownership Router (spec.md
// §4.2): a network not owned by this host gets the whole call forwarded,
// so the driver plumbing in floatingip.Engine.Associate always runs on the
// host that actually owns the fixed IP's network.
func (m *Manager) AssociateFloatingIP(ctx context.Context, floatingAddr, fixedNetworkID, fixedAddr, iface string) (string, error) {
	if m.floating == nil {
		return "", ErrFloatingIPsNotSupported
	}

	host, err := resolveFixedIPHost(ctx, m.db, fixedNetworkID, fixedAddr)
	if err != nil {
		return "", err
	}

	decision, err := m.resolveHost(ctx, api.Network{Host: host}, host)
	if err != nil {
		return "", err
	}

	args := associateFloatingIPArgs{FloatingAddr: floatingAddr, FixedNetworkID: fixedNetworkID, FixedAddr: fixedAddr, Interface: iface}

	result, err := m.dispatch(ctx, decision, "associate_floating_ip", args, func(ctx context.Context) (any, error) {
		return m.floating.Associate(ctx, floatingAddr, fixedNetworkID, fixedAddr, iface)
	})
	if err != nil {
		return "", err
	}

	if decision.Local {
		return result.(string), nil
	}

	return decodeForwardedString(result)
}

// DisassociateFloatingIP implements spec.md §4.5's disassociate_floating_ip,
// routed to whichever host the floating IP is currently recorded against.
func (m *Manager) DisassociateFloatingIP(ctx context.Context, floatingAddr string) error {
	if m.floating == nil {
		return ErrFloatingIPsNotSupported
	}

	fip, err := m.db.FloatingIPGet(ctx, floatingAddr)
	if err != nil {
		return err
	}

	host := m.localHost
	if fip.Host != nil {
		host = *fip.Host
	}

	decision, err := m.resolveHost(ctx, api.Network{Host: host}, host)
	if err != nil {
		return err
	}

	args := disassociateFloatingIPArgs{FloatingAddr: floatingAddr}

	_, err = m.dispatch(ctx, decision, "disassociate_floating_ip", args, func(ctx context.Context) (any, error) {
		return nil, m.floating.Disassociate(ctx, floatingAddr)
	})

	return err
}
