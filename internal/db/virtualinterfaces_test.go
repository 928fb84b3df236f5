package db_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/revert"
)

func TestGenerateMAC_LocallyAdministeredUnicast(t *testing.T) {
	mac, err := db.GenerateMAC()
	require.NoError(t, err)
	assert.Len(t, mac, 17)

	var firstByte int
	_, err = fmt.Sscanf(mac[:2], "%x", &firstByte)
	require.NoError(t, err)
	assert.Equal(t, 0x02, firstByte&0x02)
	assert.Equal(t, 0, firstByte&0x01)
}

func TestVirtualInterfaceCreate(t *testing.T) {
	d := newTestDB(t)
	netID := newTestNetwork(t, d)
	instance := uuid.New()

	vif, err := db.VirtualInterfaceCreate(context.Background(), d, instance, netID, 5)
	require.NoError(t, err)
	assert.Equal(t, instance, vif.InstanceUUID)
	assert.NotEmpty(t, vif.MACAddress)

	got, err := d.VirtualInterfaceGet(context.Background(), vif.ID)
	require.NoError(t, err)
	assert.Equal(t, vif.MACAddress, got.MACAddress)
}

func TestVirtualInterfaceCreateWithRevert_RollsBackOnFailure(t *testing.T) {
	d := newTestDB(t)
	netID := newTestNetwork(t, d)
	instance := uuid.New()
	ctx := context.Background()

	r := revert.New()
	defer r.Fail()

	vif, err := db.VirtualInterfaceCreateWithRevert(ctx, d, r, instance, netID, 5)
	require.NoError(t, err)

	vifs, err := d.VirtualInterfacesByInstance(ctx, instance)
	require.NoError(t, err)
	require.Len(t, vifs, 1)

	r.Fail()

	vifs, err = d.VirtualInterfacesByInstance(ctx, instance)
	require.NoError(t, err)
	assert.Empty(t, vifs)
	_ = vif
}

func TestVirtualInterfacesByInstance(t *testing.T) {
	d := newTestDB(t)
	netID := newTestNetwork(t, d)
	instance := uuid.New()
	ctx := context.Background()

	_, err := db.VirtualInterfaceCreate(ctx, d, instance, netID, 5)
	require.NoError(t, err)
	_, err = db.VirtualInterfaceCreate(ctx, d, instance, netID, 5)
	require.NoError(t, err)

	vifs, err := d.VirtualInterfacesByInstance(ctx, instance)
	require.NoError(t, err)
	assert.Len(t, vifs, 2)
}
