// Package dhcp builds the explicit DHCPRELEASE packet that
// deallocate_fixed_ip sends when force_dhcp_release is enabled
// (spec.md §4.3, §6), so the external DHCP bridge (dnsmasq/radvd) wakes
// up and calls back release_fixed_ip. Constructing and parsing the
// packet is in scope; the actual raw-socket send to the bridge, and the
// bridge/dnsmasq/radvd scripting on the other end, are not (spec.md
// §1: "DHCP and L3 driver internals").
package dhcp

import (
	"context"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hostfleet/fleetnet/internal/logger"
)

// PacketSender transmits a fully-framed release packet on the wire.
// Deliberately as narrow as netmanager.L3Driver/DHCPReleaser: this
// package only knows how to build the bytes, not how to put them on a
// bridge interface.
type PacketSender interface {
	SendPacket(ctx context.Context, frame []byte) error
}

// Releaser builds and sends DHCPRELEASE packets, satisfying
// netmanager.DHCPReleaser. ServerIP is the address the release appears
// to come from (the network's DHCP server address); Sender is the
// injectable transmit seam and follows the nil-means-log-only
// convention used by netmanager.Manager's optional collaborators.
type Releaser struct {
	ServerIP net.IP
	Sender   PacketSender
}

// New returns a Releaser bound to serverIP, with no Sender configured
// (SendRelease will only log, per the nil-means-fallback convention).
func New(serverIP net.IP) *Releaser {
	return &Releaser{ServerIP: serverIP}
}

// SendRelease builds a DHCPRELEASE frame for mac/address and hands it
// to Sender. With no Sender configured, the frame is built (so a
// caller testing packet construction gets real coverage) but not
// transmitted; a warning is logged instead of erroring, since the
// bridge send is out of scope and its absence must not fail the
// deallocation path.
func (r *Releaser) SendRelease(ctx context.Context, mac, address string) error {
	frame, err := BuildRelease(mac, address, r.ServerIP)
	if err != nil {
		return fmt.Errorf("Failed to build dhcp release packet: %w", err)
	}

	if r.Sender == nil {
		logger.Warn("dhcp release packet built but no sender configured", logger.Ctx{"mac": mac, "address": address})
		return nil
	}

	if err := r.Sender.SendPacket(ctx, frame); err != nil {
		return fmt.Errorf("Failed to send dhcp release packet: %w", err)
	}

	return nil
}

// BuildRelease serializes a broadcast Ethernet/IPv4/UDP DHCPv4 RELEASE
// frame for the given client mac/address pair, addressed to serverIP:67
// the way a DHCP client's release message is framed (RFC 2131 §4.4.4).
func BuildRelease(mac, address string, serverIP net.IP) ([]byte, error) {
	hwAddr, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid mac address %q: %w", mac, err)
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address %q", address)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("dhcp release requires an ipv4 address, got %q", address)
	}

	eth := &layers.Ethernet{
		SrcMAC:       hwAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}

	ipLayer := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ip4,
		DstIP:    serverIP,
	}

	udp := &layers.UDP{
		SrcPort: 68,
		DstPort: 67,
	}
	if err := udp.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, fmt.Errorf("Failed to bind udp checksum layer: %w", err)
	}

	dhcpLayer := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  uint8(len(hwAddr)),
		ClientIP:     ip4,
		ClientHWAddr: hwAddr,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeRelease)}),
			layers.NewDHCPOption(layers.DHCPOptServerID, serverIP.To4()),
		},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if err := gopacket.SerializeLayers(buf, opts, eth, ipLayer, udp, dhcpLayer); err != nil {
		return nil, fmt.Errorf("Failed to serialize dhcp release packet: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseRelease decodes frame back into its DHCPv4 layer, for tests and
// for the bridge-facing discovery path (the get_dhcp named mutex
// section, spec.md §5) to confirm a packet it observed really is a
// release for the address it expects.
func ParseRelease(frame []byte) (*layers.DHCPv4, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	dhcpL := pkt.Layer(layers.LayerTypeDHCPv4)
	if dhcpL == nil {
		return nil, fmt.Errorf("frame has no dhcpv4 layer")
	}

	dhcpPkt, ok := dhcpL.(*layers.DHCPv4)
	if !ok {
		return nil, fmt.Errorf("unexpected dhcpv4 layer type %T", dhcpL)
	}

	return dhcpPkt, nil
}

// MessageType returns the DHCPOptMessageType option's value, or an
// error if the packet carries none.
func MessageType(pkt *layers.DHCPv4) (layers.DHCPMsgType, error) {
	for _, opt := range pkt.Options {
		if opt.Type == layers.DHCPOptMessageType && len(opt.Data) == 1 {
			return layers.DHCPMsgType(opt.Data[0]), nil
		}
	}

	return 0, fmt.Errorf("dhcp packet carries no message type option")
}
