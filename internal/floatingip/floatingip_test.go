package floatingip_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/floatingip"
)

type fakeQuota struct {
	reserveErr  error
	committed   bool
	rolledBack  bool
}

func (q *fakeQuota) Reserve(ctx context.Context, projectID string) (func(), func(), error) {
	if q.reserveErr != nil {
		return nil, nil, q.reserveErr
	}

	return func() { q.committed = true }, func() { q.rolledBack = true }, nil
}

type fakeDriver struct {
	addErr    error
	removeErr error
	added     []string
	removed   []string
}

func (d *fakeDriver) AddFloatingIP(ctx context.Context, floating, fixed, iface string) error {
	d.added = append(d.added, floating)
	return d.addErr
}

func (d *fakeDriver) RemoveFloatingIP(ctx context.Context, floating, fixed, iface string) error {
	d.removed = append(d.removed, floating)
	return d.removeErr
}

type fakeHosts struct {
	host string
}

func (h *fakeHosts) HostForFixedIP(ctx context.Context, networkID, address string) (string, error) {
	return h.host, nil
}

func newEngine(t *testing.T, quota *fakeQuota, driver *fakeDriver, hosts *fakeHosts, localHost string) (*floatingip.Engine, *db.DB) {
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return floatingip.New(d, quota, driver, hosts, localHost), d
}

func TestEngine_Allocate_QuotaCommittedOnSuccess(t *testing.T) {
	quota := &fakeQuota{}
	e, d := newEngine(t, quota, &fakeDriver{}, &fakeHosts{host: "h1"}, "h1")
	ctx := context.Background()

	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))

	addr, err := e.Allocate(ctx, "public", "proj-a", false)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1", addr)
	assert.True(t, quota.committed)
	assert.False(t, quota.rolledBack)
}

func TestEngine_Allocate_QuotaRolledBackOnPoolExhaustion(t *testing.T) {
	quota := &fakeQuota{}
	e, _ := newEngine(t, quota, &fakeDriver{}, &fakeHosts{host: "h1"}, "h1")

	_, err := e.Allocate(context.Background(), "public", "proj-a", false)
	assert.ErrorIs(t, err, floatingip.ErrNoFloatingIPsLeft)
	assert.True(t, quota.rolledBack)
	assert.False(t, quota.committed)
}

func TestEngine_Allocate_AutoAssignedBypassesQuota(t *testing.T) {
	quota := &fakeQuota{reserveErr: fmt.Errorf("quota exceeded")}
	e, d := newEngine(t, quota, &fakeDriver{}, &fakeHosts{host: "h1"}, "h1")
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))

	addr, err := e.Allocate(ctx, "public", "proj-a", true)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1", addr)
}

func TestEngine_Release_RefusesWhenAssociated(t *testing.T) {
	quota := &fakeQuota{}
	e, d := newEngine(t, quota, &fakeDriver{}, &fakeHosts{host: "h1"}, "h1")
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))
	_, err := e.Allocate(ctx, "public", "proj-a", false)
	require.NoError(t, err)

	_, err = e.Associate(ctx, "203.0.113.1", "net-1", "10.0.0.5", "eth0")
	require.NoError(t, err)

	err = e.Release(ctx, "203.0.113.1")
	assert.ErrorIs(t, err, floatingip.ErrAssociated)
}

func TestEngine_Associate_RollsBackOnDeviceNotFound(t *testing.T) {
	quota := &fakeQuota{}
	driver := &fakeDriver{addErr: errors.New("Cannot find device eth0")}
	e, d := newEngine(t, quota, driver, &fakeHosts{host: "h1"}, "h1")
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))
	_, err := e.Allocate(ctx, "public", "proj-a", false)
	require.NoError(t, err)

	_, err = e.Associate(ctx, "203.0.113.1", "net-1", "10.0.0.5", "eth0")
	assert.ErrorIs(t, err, floatingip.ErrNoFloatingIPInterface)

	fip, err := d.FloatingIPGet(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Nil(t, fip.FixedIPAddr)
}

func TestEngine_Associate_ReturnsPreviousFixedAddr(t *testing.T) {
	quota := &fakeQuota{}
	e, d := newEngine(t, quota, &fakeDriver{}, &fakeHosts{host: "h1"}, "h1")
	ctx := context.Background()
	require.NoError(t, d.FloatingIPBulkCreate(ctx, []string{"203.0.113.1"}, "public"))
	_, err := e.Allocate(ctx, "public", "proj-a", false)
	require.NoError(t, err)

	_, err = e.Associate(ctx, "203.0.113.1", "net-1", "10.0.0.5", "eth0")
	require.NoError(t, err)

	prev, err := e.Associate(ctx, "203.0.113.1", "net-1", "10.0.0.6", "eth0")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", prev)
}
