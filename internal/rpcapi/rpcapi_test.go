package rpcapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/netmanager"
	"github.com/hostfleet/fleetnet/internal/rpcapi"
	"github.com/hostfleet/fleetnet/internal/topology"
	"github.com/hostfleet/fleetnet/internal/worker"
)

type noopDriver struct{}

func (noopDriver) SetupNetworkOnHost(ctx context.Context, n api.Network) error    { return nil }
func (noopDriver) TeardownNetworkOnHost(ctx context.Context, n api.Network) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *netmanager.Manager) {
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	variant, err := topology.NewVariant(topology.KindFlatDHCP, cfg)
	require.NoError(t, err)

	m := netmanager.New(netmanager.Options{
		DB:         d,
		Config:     cfg,
		Variant:    variant,
		Driver:     noopDriver{},
		LocalHost:  "host-a",
		WorkerPool: worker.New(4),
	})

	srv := httptest.NewServer(rpcapi.NewServer(m))
	t.Cleanup(srv.Close)

	return srv, m
}

func postJSON(t *testing.T, srv *httptest.Server, op string, req any) (*http.Response, map[string]any) {
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/"+rpcapi.Version+"/rpc/"+op, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp, out
}

func TestServer_VersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/" + rpcapi.Version)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CreateNetworksThenAllocateForInstance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postJSON(t, srv, "create_networks", topology.CreateRequest{
		Label: "priv", CIDR: "10.0.0.0/29", Bridge: "br0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	networks, ok := out["metadata"].([]any)
	require.True(t, ok)
	require.Len(t, networks, 1)
	netID := networks[0].(map[string]any)["id"].(string)

	instanceUUID := uuid.New()
	resp, out = postJSON(t, srv, "allocate_for_instance", map[string]any{
		"instance_uuid":      instanceUUID,
		"requested_networks": []string{netID},
		"display_name":       "vm1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metadata, ok := out["metadata"].(map[string]any)
	require.True(t, ok)
	vifs, ok := metadata["vifs"].([]any)
	require.True(t, ok)
	assert.Len(t, vifs, 1)
}

func TestServer_UnknownOpReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/"+rpcapi.Version+"/rpc/not_a_real_op", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DeleteNetwork_UnknownIDErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postJSON(t, srv, "delete_network", map[string]any{
		"id": uuid.New(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "error", out["type"])
}
