// Package rpcapi is the HTTP transport for the RPC surface of spec.md
// §6: every Network Manager operation the Ownership Router
// (internal/netmanager.Router) may need to invoke on a remote host, plus
// the operations an external caller (compute) invokes directly. The
// wire format itself is explicitly a non-goal of spec.md §1 ("we do not
// specify the wire format of the RPC transport"); this package supplies
// one concrete choice, routed with github.com/gorilla/mux the way the
// teacher routes its own REST API.
package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostfleet/fleetnet/internal/metrics"
	"github.com/hostfleet/fleetnet/internal/netmanager"
	"github.com/hostfleet/fleetnet/internal/topology"
)

// Version is the RPC API version of spec.md §6, preserved from
// original_source/nova's RPC_API_VERSION.
const Version = "1.3"

// opHandler decodes a request body and invokes one Manager operation.
// The dispatch table below is this package's op-name → handler map, one
// route per op; external callers and rpcclient.Client post to the same
// routes.
type opHandler func(ctx context.Context, m *netmanager.Manager, body []byte) (any, error)

// Server dispatches the RPC surface over HTTP.
type Server struct {
	manager *netmanager.Manager
	mux     *mux.Router
}

// NewServer builds a Server bound to manager, with routes registered
// for every RPC surface operation plus a /metrics endpoint exposing
// internal/metrics' registry.
func NewServer(manager *netmanager.Manager) *Server {
	s := &Server{manager: manager, mux: mux.NewRouter()}
	s.mux.StrictSlash(false)

	for op, handler := range dispatch {
		s.mux.HandleFunc("/"+Version+"/rpc/"+op, s.handle(op, handler)).Methods(http.MethodPost)
	}

	s.mux.HandleFunc("/"+Version, s.handleVersion).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeSync(w, map[string]any{"api": Version})
}

func (s *Server) handle(op string, handler opHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		result, err := handler(r.Context(), s.manager, body)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		writeSync(w, result)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// statusFor maps a Manager sentinel error to an HTTP status the way
// spec.md §7's error taxonomy implies (not-found vs. conflict vs.
// generic failure), so callers on the wire can distinguish them without
// parsing the error string.
func statusFor(err error) int {
	switch {
	case isAny(err, netmanager.ErrNotFound):
		return http.StatusNotFound
	case isAny(err, netmanager.ErrFixedIPAlreadyInUse, netmanager.ErrNoMoreFixedIPs, netmanager.ErrVirtualInterfaceExhausted):
		return http.StatusConflict
	case isAny(err, netmanager.ErrNotAuthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}

	return false
}

// dispatch is the RPC surface named in spec.md §6; each handler below
// decodes its own request struct.
var dispatch = map[string]opHandler{
	"allocate_for_instance":          allocateForInstance,
	"deallocate_for_instance":        deallocateForInstance,
	"allocate_fixed_ip":              allocateFixedIP,
	"deallocate_fixed_ip":            deallocateFixedIP,
	"associate_floating_ip":          associateFloatingIP,
	"disassociate_floating_ip":       disassociateFloatingIP,
	"get_instance_nw_info":           getInstanceNwInfo,
	"validate_networks":              validateNetworks,
	"create_networks":                createNetworks,
	"delete_network":                 deleteNetwork,
	"add_fixed_ip_to_instance":       addFixedIPToInstance,
	"remove_fixed_ip_from_instance":  removeFixedIPFromInstance,
	"lease_fixed_ip":                 leaseFixedIP,
	"release_fixed_ip":               releaseFixedIP,
	"migrate_instance_start":         migrateInstanceStart,
	"migrate_instance_finish":        migrateInstanceFinish,
	"setup_networks_on_host":         setupNetworksOnHost,
}

type allocateForInstanceReq struct {
	InstanceID        int64       `json:"instance_id"`
	InstanceUUID      uuid.UUID   `json:"instance_uuid"`
	ProjectID         string      `json:"project_id"`
	Host              string      `json:"host"`
	RxtxFactor        float64     `json:"rxtx_factor"`
	VPN               bool        `json:"vpn"`
	RequestedNetworks []uuid.UUID `json:"requested_networks"`
	DisplayName       string      `json:"display_name"`
}

func allocateForInstance(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req allocateForInstanceReq
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.AllocateForInstance(ctx, netmanager.InstanceRequest{
		InstanceID:        req.InstanceID,
		InstanceUUID:      req.InstanceUUID,
		ProjectID:         req.ProjectID,
		Host:              req.Host,
		RxtxFactor:        req.RxtxFactor,
		VPN:               req.VPN,
		RequestedNetworks: req.RequestedNetworks,
		DisplayName:       req.DisplayName,
	})
}

func deallocateForInstance(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.DeallocateForInstance(ctx, req.InstanceUUID)
}

func allocateFixedIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
		NetworkID    uuid.UUID `json:"network_id"`
		Address      string    `json:"address"`
		VPN          bool      `json:"vpn"`
		DisplayName  string    `json:"display_name"`
		Host         string    `json:"host"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.AllocateFixedIP(ctx, req.InstanceUUID, req.NetworkID, req.Address, req.VPN, req.DisplayName, req.Host)
}

func deallocateFixedIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		NetworkID uuid.UUID `json:"network_id"`
		Address   string    `json:"address"`
		Teardown  bool      `json:"teardown"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.DeallocateFixedIP(ctx, req.NetworkID, req.Address, req.Teardown)
}

func associateFloatingIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		FloatingAddr   string `json:"floating_address"`
		FixedNetworkID string `json:"fixed_network_id"`
		FixedAddr      string `json:"fixed_address"`
		Interface      string `json:"interface"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.AssociateFloatingIP(ctx, req.FloatingAddr, req.FixedNetworkID, req.FixedAddr, req.Interface)
}

func disassociateFloatingIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		FloatingAddr string `json:"floating_address"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.DisassociateFloatingIP(ctx, req.FloatingAddr)
}

func getInstanceNwInfo(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
		Host         string    `json:"host"`
		RxtxFactor   float64   `json:"rxtx_factor"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.GetInstanceNwInfo(ctx, req.InstanceUUID, req.Host, req.RxtxFactor)
}

func validateNetworks(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		Requested          []uuid.UUID          `json:"requested"`
		RequestedAddresses map[uuid.UUID]string `json:"requested_addresses"`
		InstanceUUID       uuid.UUID            `json:"instance_uuid"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.ValidateNetworks(ctx, req.Requested, req.RequestedAddresses, req.InstanceUUID)
}

func createNetworks(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req topology.CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.CreateNetworks(ctx, req)
}

func deleteNetwork(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.DeleteNetwork(ctx, req.ID)
}

func addFixedIPToInstance(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
		NetworkID    uuid.UUID `json:"network_id"`
		DisplayName  string    `json:"display_name"`
		Host         string    `json:"host"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return m.AddFixedIPToInstance(ctx, req.InstanceUUID, req.NetworkID, req.DisplayName, req.Host)
}

func removeFixedIPFromInstance(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
		NetworkID    uuid.UUID `json:"network_id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.RemoveFixedIPFromInstance(ctx, req.InstanceUUID, req.NetworkID)
}

func leaseFixedIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		NetworkID uuid.UUID `json:"network_id"`
		Address   string    `json:"address"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.LeaseFixedIP(ctx, req.NetworkID, req.Address)
}

func releaseFixedIP(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		NetworkID uuid.UUID `json:"network_id"`
		Address   string    `json:"address"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.ReleaseFixedIP(ctx, req.NetworkID, req.Address)
}

func migrateInstanceStart(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.MigrateInstanceStart(ctx, req.InstanceUUID)
}

func migrateInstanceFinish(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		InstanceUUID uuid.UUID `json:"instance_uuid"`
		DestHost     string    `json:"dest_host"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.MigrateInstanceFinish(ctx, req.InstanceUUID, req.DestHost)
}

func setupNetworksOnHost(ctx context.Context, m *netmanager.Manager, body []byte) (any, error) {
	var req struct {
		NetworkIDs []uuid.UUID `json:"network_ids"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	return nil, m.SetupNetworksOnHost(ctx, req.NetworkIDs)
}
