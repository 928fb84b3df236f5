package dhcp_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/dhcp"
)

func TestBuildRelease_RoundTripsMessageType(t *testing.T) {
	frame, err := dhcp.BuildRelease("aa:bb:cc:dd:ee:ff", "10.0.0.5", net.ParseIP("10.0.0.1"))
	require.NoError(t, err)
	require.NotEmpty(t, frame)

	pkt, err := dhcp.ParseRelease(frame)
	require.NoError(t, err)

	msgType, err := dhcp.MessageType(pkt)
	require.NoError(t, err)
	assert.Equal(t, layers.DHCPMsgTypeRelease, msgType)
	assert.Equal(t, net.IP(net.ParseIP("10.0.0.5").To4()), net.IP(pkt.ClientIP))
}

func TestBuildRelease_RejectsInvalidMAC(t *testing.T) {
	_, err := dhcp.BuildRelease("not-a-mac", "10.0.0.5", net.ParseIP("10.0.0.1"))
	assert.Error(t, err)
}

func TestBuildRelease_RejectsInvalidAddress(t *testing.T) {
	_, err := dhcp.BuildRelease("aa:bb:cc:dd:ee:ff", "not-an-ip", net.ParseIP("10.0.0.1"))
	assert.Error(t, err)
}

func TestBuildRelease_RejectsIPv6Address(t *testing.T) {
	_, err := dhcp.BuildRelease("aa:bb:cc:dd:ee:ff", "fe80::1", net.ParseIP("10.0.0.1"))
	assert.Error(t, err)
}

type fakeSender struct {
	frame []byte
	err   error
}

func (f *fakeSender) SendPacket(ctx context.Context, frame []byte) error {
	f.frame = frame
	return f.err
}

func TestReleaser_SendRelease_UsesSender(t *testing.T) {
	sender := &fakeSender{}
	r := &dhcp.Releaser{ServerIP: net.ParseIP("10.0.0.1"), Sender: sender}

	err := r.SendRelease(context.Background(), "aa:bb:cc:dd:ee:ff", "10.0.0.5")
	require.NoError(t, err)
	assert.NotEmpty(t, sender.frame)
}

func TestReleaser_SendRelease_NoSenderIsNotAnError(t *testing.T) {
	r := dhcp.New(net.ParseIP("10.0.0.1"))

	err := r.SendRelease(context.Background(), "aa:bb:cc:dd:ee:ff", "10.0.0.5")
	assert.NoError(t, err)
}

func TestReleaser_SendRelease_PropagatesSenderError(t *testing.T) {
	wantErr := errors.New("link down")
	sender := &fakeSender{err: wantErr}
	r := &dhcp.Releaser{ServerIP: net.ParseIP("10.0.0.1"), Sender: sender}

	err := r.SendRelease(context.Background(), "aa:bb:cc:dd:ee:ff", "10.0.0.5")
	assert.ErrorIs(t, err, wantErr)
}
