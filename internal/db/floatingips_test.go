package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/db"
)

func TestFloatingIPAllocateAddress(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1", "203.0.113.2"}, "public"))

	addr, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-a")
	require.NoError(t, err)
	assert.Contains(t, []string{"203.0.113.1", "203.0.113.2"}, addr)

	fip, err := d.FloatingIPGet(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, fip.ProjectID)
	assert.Equal(t, "proj-a", *fip.ProjectID)
}

func TestFloatingIPAllocateAddress_ExhaustedReturnsErr(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))

	_, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-a")
	require.NoError(t, err)

	_, err = d.FloatingIPAllocateAddress(ctx, "public", "proj-b")
	assert.ErrorIs(t, err, db.ErrNoMoreFixedIPs)
}

func TestFloatingIPAssociateAndDisassociate(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))

	_, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-a")
	require.NoError(t, err)

	host := "compute-1"
	iface := "eth0"
	require.NoError(t, d.FloatingIPAssociate(ctx, "203.0.113.1", "10.0.0.5", "net-1", &host, &iface))

	fip, err := d.FloatingIPGet(ctx, "203.0.113.1")
	require.NoError(t, err)
	require.NotNil(t, fip.FixedIPAddr)
	assert.Equal(t, "10.0.0.5", *fip.FixedIPAddr)

	prevFixed, err := d.FloatingIPDisassociate(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", prevFixed)

	fip, err = d.FloatingIPGet(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Nil(t, fip.FixedIPAddr)
}

func TestFloatingIPRelease(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))

	_, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-a")
	require.NoError(t, err)

	require.NoError(t, d.FloatingIPRelease(ctx, "203.0.113.1"))

	fip, err := d.FloatingIPGet(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Nil(t, fip.ProjectID)
	assert.False(t, fip.AutoAssigned)

	addr, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-b")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1", addr)
}

func TestFloatingIPsByHost(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1", "203.0.113.2"}, "public"))

	_, err := d.FloatingIPAllocateAddress(ctx, "public", "proj-a")
	require.NoError(t, err)

	host := "compute-1"
	iface := "eth0"
	require.NoError(t, d.FloatingIPAssociate(ctx, "203.0.113.1", "10.0.0.5", "net-1", &host, &iface))

	fips, err := d.FloatingIPsByHost(ctx, "compute-1")
	require.NoError(t, err)
	require.Len(t, fips, 1)
	assert.Equal(t, "203.0.113.1", fips[0].Address)
}
