package ipam_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/ipam"
)

func newPool(t *testing.T, cidr string) (*ipam.Pool, *db.DB) {
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	netID := uuid.New()
	require.NoError(t, d.NetworkCreate(context.Background(), api.Network{
		ID: netID, Label: "net1", CIDR: cidr, Bridge: "br0", CreatedAt: time.Now(),
	}))

	return ipam.New(d, netID), d
}

func TestPool_BulkCreate_ReservesFirstAndLast(t *testing.T) {
	pool, _ := newPool(t, "10.0.0.0/29")

	err := pool.BulkCreate(context.Background(), "10.0.0.0/29", func(index, count int) bool {
		return index == 0 || index == count-1
	})
	require.NoError(t, err)

	allocated, reserved, free, err := pool.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, allocated)
	assert.Equal(t, 2, reserved)
	assert.Equal(t, 6, free) // /29 has 8 host addresses total here.
}

func TestPool_Associate_ExhaustionReturnsIpamErr(t *testing.T) {
	pool, _ := newPool(t, "10.0.0.0/30")
	require.NoError(t, pool.BulkCreate(context.Background(), "10.0.0.0/30", nil))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := pool.Associate(ctx, uuid.New(), false)
		require.NoError(t, err)
	}

	_, err := pool.Associate(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, ipam.ErrNoMoreFixedIPs)
}

func TestPool_AssociateAddress_Collision(t *testing.T) {
	pool, _ := newPool(t, "10.0.0.0/30")
	require.NoError(t, pool.BulkCreate(context.Background(), "10.0.0.0/30", nil))

	ctx := context.Background()
	require.NoError(t, pool.AssociateAddress(ctx, "10.0.0.1", uuid.New(), false))

	err := pool.AssociateAddress(ctx, "10.0.0.1", uuid.New(), false)
	assert.ErrorIs(t, err, ipam.ErrFixedIPAlreadyInUse)
}

func TestPool_Disassociate(t *testing.T) {
	pool, _ := newPool(t, "10.0.0.0/30")
	require.NoError(t, pool.BulkCreate(context.Background(), "10.0.0.0/30", nil))

	ctx := context.Background()
	instance := uuid.New()
	require.NoError(t, pool.AssociateAddress(ctx, "10.0.0.1", instance, false))
	require.NoError(t, pool.Disassociate(ctx, "10.0.0.1"))

	fip, err := pool.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, fip.Allocated)
}
