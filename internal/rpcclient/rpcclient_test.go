package rpcclient_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/cluster"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/netmanager"
	"github.com/hostfleet/fleetnet/internal/rpcapi"
	"github.com/hostfleet/fleetnet/internal/rpcclient"
	"github.com/hostfleet/fleetnet/internal/topology"
	"github.com/hostfleet/fleetnet/internal/worker"
)

type noopDriver struct{}

func (noopDriver) SetupNetworkOnHost(ctx context.Context, n api.Network) error    { return nil }
func (noopDriver) TeardownNetworkOnHost(ctx context.Context, n api.Network) error { return nil }

func newRemoteManager(t *testing.T) *httptest.Server {
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	variant, err := topology.NewVariant(topology.KindFlatDHCP, cfg)
	require.NoError(t, err)

	m := netmanager.New(netmanager.Options{
		DB: d, Config: cfg, Variant: variant, Driver: noopDriver{}, LocalHost: "host-b", WorkerPool: worker.New(4),
	})

	srv := httptest.NewServer(rpcapi.NewServer(m))
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_Forward_ReachesRemoteServer(t *testing.T) {
	srv := newRemoteManager(t)
	addr, err := url.Parse(srv.URL)
	require.NoError(t, err)

	store := cluster.NewMemStore()
	require.NoError(t, store.Heartbeat(context.Background(), "host-b", addr.Host))

	client := rpcclient.New(store)

	result, err := client.Forward(context.Background(), "host-b", "create_networks", topology.CreateRequest{
		Label: "priv", CIDR: "10.0.0.0/29", Bridge: "br0",
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestClient_Forward_UnknownHostErrors(t *testing.T) {
	store := cluster.NewMemStore()
	client := rpcclient.New(store)

	_, err := client.Forward(context.Background(), "ghost-host", "delete_network", map[string]any{"id": uuid.New()})
	assert.Error(t, err)
}

func TestClient_Forward_PropagatesRemoteError(t *testing.T) {
	srv := newRemoteManager(t)
	addr, err := url.Parse(srv.URL)
	require.NoError(t, err)

	store := cluster.NewMemStore()
	require.NoError(t, store.Heartbeat(context.Background(), "host-b", addr.Host))

	client := rpcclient.New(store)

	_, err = client.Forward(context.Background(), "host-b", "delete_network", map[string]any{"id": uuid.New()})
	assert.Error(t, err)
}
