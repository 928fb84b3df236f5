package topology

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/logger"
)

// BridgeDriver provisions the bridge/VLAN plumbing a network variant
// needs on the local host (spec.md §4.4's "Creates bridge"/"Creates VLAN
// tag" columns), backed by github.com/vishvananda/netlink rather than
// shelling out to brctl/ip, matching the teacher's driver-package shape
// of wrapping a netlink-style library behind a narrow interface.
type BridgeDriver struct{}

// NewBridgeDriver returns a BridgeDriver.
func NewBridgeDriver() *BridgeDriver { return &BridgeDriver{} }

// EnsureBridge creates the named bridge if it does not already exist and
// assigns it n.Gateway/n.CIDR as its address, idempotently.
func (d *BridgeDriver) EnsureBridge(n api.Network) error {
	link, err := netlink.LinkByName(n.Bridge)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); !ok {
			return fmt.Errorf("Failed to look up bridge %q: %w", n.Bridge, err)
		}

		br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: n.Bridge}}
		if err := netlink.LinkAdd(br); err != nil {
			return fmt.Errorf("Failed to create bridge %q: %w", n.Bridge, err)
		}

		link = br
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("Failed to bring bridge %q up: %w", n.Bridge, err)
	}

	if n.Gateway != "" && n.CIDR != "" {
		if err := d.ensureAddr(link, n.Gateway, n.CIDR); err != nil {
			return err
		}
	}

	return nil
}

func (d *BridgeDriver) ensureAddr(link netlink.Link, gateway, cidr string) error {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("Failed to parse cidr %q: %w", cidr, err)
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: net.ParseIP(gateway), Mask: ipNet.Mask}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		logger.Debug("bridge address already present, skipping", logger.Ctx{"bridge": link.Attrs().Name, "address": gateway, "err": err})
	}

	return nil
}

// EnsureVLAN creates a VLAN sub-interface on parentIface tagged vlanTag
// and enslaves it to the network's bridge (spec.md §4.4 VLAN variant).
func (d *BridgeDriver) EnsureVLAN(n api.Network, parentIface string) error {
	if n.VlanTag == nil {
		return fmt.Errorf("EnsureVLAN called on a network without a vlan tag")
	}

	parent, err := netlink.LinkByName(parentIface)
	if err != nil {
		return fmt.Errorf("Failed to look up vlan parent interface %q: %w", parentIface, err)
	}

	vlanName := fmt.Sprintf("%s.%d", parentIface, *n.VlanTag)

	link, err := netlink.LinkByName(vlanName)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); !ok {
			return fmt.Errorf("Failed to look up vlan interface %q: %w", vlanName, err)
		}

		vlan := &netlink.Vlan{
			LinkAttrs: netlink.LinkAttrs{Name: vlanName, ParentIndex: parent.Attrs().Index},
			VlanId:    int(*n.VlanTag),
		}
		if err := netlink.LinkAdd(vlan); err != nil {
			return fmt.Errorf("Failed to create vlan interface %q: %w", vlanName, err)
		}

		link = vlan
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("Failed to bring vlan interface %q up: %w", vlanName, err)
	}

	br, err := netlink.LinkByName(n.Bridge)
	if err != nil {
		return fmt.Errorf("Failed to look up bridge %q: %w", n.Bridge, err)
	}

	if err := netlink.LinkSetMaster(link, br.(*netlink.Bridge)); err != nil {
		return fmt.Errorf("Failed to enslave vlan interface %q to bridge %q: %w", vlanName, n.Bridge, err)
	}

	return nil
}

// TeardownBridge removes the bridge interface entirely; called only from
// a genuine network deletion, never from instance-level deallocation
// (spec.md §4.2's teardown degradation never touches the driver).
func (d *BridgeDriver) TeardownBridge(n api.Network) error {
	link, err := netlink.LinkByName(n.Bridge)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}

		return fmt.Errorf("Failed to look up bridge %q: %w", n.Bridge, err)
	}

	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("Failed to delete bridge %q: %w", n.Bridge, err)
	}

	return nil
}
