package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/reaper"
	"github.com/hostfleet/fleetnet/internal/topology"
)

func newTestDB(t *testing.T) *db.DB {
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTestNetwork(t *testing.T, d *db.DB, ctx context.Context) api.Network {
	n := api.Network{ID: uuid.New(), Label: "priv", CIDR: "10.0.0.0/29", Bridge: "br0", CreatedAt: time.Now()}
	require.NoError(t, d.NetworkCreate(ctx, n))
	require.NoError(t, d.FixedIPBulkCreate(ctx, n.ID, []string{"10.0.0.2"}, func(index, count int) bool { return false }))
	return n
}

// TestReaper_Sweep_DisassociatesPastCutoff is scenario S6: a FixedIP
// marked unallocated (instance_uuid still set, per the original's base
// deallocate_fixed_ip) whose updated_at predates the cutoff gets its
// instance_uuid cleared by the next sweep. A negative timeout pushes
// the cutoff into the future relative to "now", standing in for a row
// already older than the grace period without needing to backdate
// updated_at directly.
func TestReaper_Sweep_DisassociatesPastCutoff(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.Load(map[string]string{config.OptFixedIPDisassociateTimeout: "-5"})
	require.NoError(t, err)

	variant, err := topology.NewVariant(topology.KindFlatDHCP, cfg)
	require.NoError(t, err)

	n := newTestNetwork(t, d, ctx)
	addr := "10.0.0.2"
	instanceUUID := uuid.New()

	require.NoError(t, d.FixedIPAssociate(ctx, n.ID, addr, instanceUUID, false))
	require.NoError(t, d.FixedIPMarkUnallocated(ctx, n.ID, addr))

	r := reaper.New(d, cfg, variant)
	r.Sweep(ctx)

	fip, err := d.FixedIPGet(ctx, n.ID, addr)
	require.NoError(t, err)
	assert.Nil(t, fip.InstanceUUID)
}

func TestReaper_Sweep_DisabledForFlat(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.Load(map[string]string{config.OptFixedIPDisassociateTimeout: "-5"})
	require.NoError(t, err)

	variant, err := topology.NewVariant(topology.KindFlat, cfg)
	require.NoError(t, err)

	n := newTestNetwork(t, d, ctx)
	addr := "10.0.0.2"
	instanceUUID := uuid.New()

	require.NoError(t, d.FixedIPAssociate(ctx, n.ID, addr, instanceUUID, false))
	require.NoError(t, d.FixedIPMarkUnallocated(ctx, n.ID, addr))

	r := reaper.New(d, cfg, variant)
	r.Sweep(ctx)

	fip, err := d.FixedIPGet(ctx, n.ID, addr)
	require.NoError(t, err)
	require.NotNil(t, fip.InstanceUUID)
	assert.Equal(t, instanceUUID, *fip.InstanceUUID, "Flat variant disables the reaper entirely")
}

func TestReaper_Schedule_FloorsToOneMinute(t *testing.T) {
	cfg, err := config.Load(map[string]string{config.OptFixedIPDisassociateTimeout: "10"})
	require.NoError(t, err)

	variant, err := topology.NewVariant(topology.KindFlatDHCP, cfg)
	require.NoError(t, err)

	r := reaper.New(newTestDB(t), cfg, variant)
	sched := r.Schedule()

	// task.Every fires immediately on its first call; the second call
	// returns the steady interval: 10s/2 = 5s, floored to one minute.
	_, err = sched()
	require.NoError(t, err)

	interval, err := sched()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)
}
