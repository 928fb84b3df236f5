// Package netmanager implements the Network Manager core of spec.md
// §4.3: the per-host actor exposing allocate/deallocate/associate/
// disassociate operations for instances, coordinating VIF creation,
// DHCP/L3 driver calls, DNS side effects and the Ownership Router.
package netmanager

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/dnsutil"
	"github.com/hostfleet/fleetnet/internal/floatingip"
	"github.com/hostfleet/fleetnet/internal/ipam"
	"github.com/hostfleet/fleetnet/internal/locking"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/revert"
	"github.com/hostfleet/fleetnet/internal/topology"
	"github.com/hostfleet/fleetnet/internal/worker"
)

// Sentinel errors, per spec.md §7.
var (
	ErrNotFound                  = db.ErrNotFound
	ErrFixedIPAlreadyInUse       = db.ErrFixedIPAlreadyInUse
	ErrNoMoreFixedIPs            = db.ErrNoMoreFixedIPs
	ErrVirtualInterfaceExhausted = errors.New("virtual interface mac address exception: unique mac address attempts exhausted")
	ErrNotAuthorized             = errors.New("not authorized")
)

// SecurityGroupRefresher is called after a fixed-IP allocation to refresh
// group membership (spec.md §4.3 step (c)); deliberately out of scope per
// spec.md §1, so fleetnet only defines the interface.
type SecurityGroupRefresher interface {
	RefreshMembership(ctx context.Context, instanceUUID uuid.UUID) error
}

// L3Driver is the per-network setup/teardown driver surface (spec.md
// §4.3 step (e), "_setup_network_on_host").
type L3Driver interface {
	SetupNetworkOnHost(ctx context.Context, n api.Network) error
	TeardownNetworkOnHost(ctx context.Context, n api.Network) error
}

// DHCPReleaser sends an explicit DHCP release packet so the external
// DHCP bridge calls back ReleaseFixedIP (spec.md §4.3
// deallocate_fixed_ip, force_dhcp_release).
type DHCPReleaser interface {
	SendRelease(ctx context.Context, mac, address string) error
}

// Manager is the Network Manager core. Its public methods are the RPC
// surface of spec.md §6 (rpcapi.Server dispatches to these).
type Manager struct {
	db        *db.DB
	cfg       config.NetworkConfig
	variant   topology.Variant
	router    *Router
	driver    L3Driver
	dhcp      DHCPReleaser
	dns       *dnsutil.Fanout
	secgroups SecurityGroupRefresher
	floating  *floatingip.Engine
	localHost string
	pool      *worker.Pool
}

// Options configures a new Manager.
type Options struct {
	DB          *db.DB
	Config      config.NetworkConfig
	Variant     topology.Variant
	Router      *Router
	Driver      L3Driver
	DHCP        DHCPReleaser
	DNS         *dnsutil.Fanout
	SecGroups   SecurityGroupRefresher
	Floating    *floatingip.Engine
	LocalHost   string
	WorkerPool  *worker.Pool
}

// New constructs a Manager.
func New(opts Options) *Manager {
	return &Manager{
		db:        opts.DB,
		cfg:       opts.Config,
		variant:   opts.Variant,
		router:    opts.Router,
		driver:    opts.Driver,
		dhcp:      opts.DHCP,
		dns:       opts.DNS,
		secgroups: opts.SecGroups,
		floating:  opts.Floating,
		localHost: opts.LocalHost,
		pool:      opts.WorkerPool,
	}
}

// InstanceRequest carries allocate_for_instance's parameters (spec.md
// §4.3).
type InstanceRequest struct {
	InstanceID        int64
	InstanceUUID      uuid.UUID
	ProjectID         string
	Host              string
	RxtxFactor        float64
	VPN               bool
	RequestedNetworks []uuid.UUID
	DisplayName       string
}

// AllocateForInstance implements spec.md §4.3's allocate_for_instance:
// select networks, create one VIF per network (MAC retried on
// collision), fan out fixed-IP allocation one task per network in
// parallel, optionally fan out DNS, and assemble the NetworkInfo model.
func (m *Manager) AllocateForInstance(ctx context.Context, req InstanceRequest) (api.NetworkInfo, error) {
	networks, err := m.selectNetworks(ctx, req.ProjectID, req.RequestedNetworks)
	if err != nil {
		return api.NetworkInfo{}, err
	}

	r := revert.New()
	defer r.Fail()

	for _, n := range networks {
		if _, err := db.VirtualInterfaceCreateWithRevert(ctx, m.db, r, req.InstanceUUID, n.ID, m.cfg.CreateUniqueMacAddressAttempts()); err != nil {
			if errors.Is(err, db.ErrMACAddressInUse) {
				return api.NetworkInfo{}, ErrVirtualInterfaceExhausted
			}

			return api.NetworkInfo{}, err
		}
	}

	// allocateFixedIPsParallel delegates each network to AllocateFixedIP,
	// which already performs VIF linkage, security-group refresh, DNS
	// fanout and driver setup per network (and, via the Ownership Router,
	// runs that whole sequence on whichever host actually owns the
	// network), so nothing further is needed here once it returns.
	if _, err := m.allocateFixedIPsParallel(ctx, networks, req); err != nil {
		return api.NetworkInfo{}, err
	}

	r.Success()

	info, err := m.buildNetworkInfo(ctx, req.InstanceUUID, req.Host, req.RxtxFactor)
	if err != nil {
		return api.NetworkInfo{}, err
	}

	return info, nil
}

// allocateFixedIPsParallel fans out one allocation task per network
// (spec.md §5: "allocate_for_instance fans out one task per network
// through a worker pool and joins on all completions before returning"),
// returning the allocated address per network in the same order as
// networks. Each task is a full AllocateFixedIP call so the Ownership
// Router (spec.md §4.2) can forward it to the network's owning host.
func (m *Manager) allocateFixedIPsParallel(ctx context.Context, networks []api.Network, req InstanceRequest) ([]string, error) {
	results := make([]string, len(networks))
	errs := make([]error, len(networks))

	tasks := make([]func(), len(networks))
	for i, n := range networks {
		i, n := i, n
		tasks[i] = func() {
			addr, err := m.AllocateFixedIP(ctx, req.InstanceUUID, n.ID, "", req.VPN, req.DisplayName, req.Host)
			if err != nil {
				errs[i] = fmt.Errorf("network %s: %w", n.ID, err)
				return
			}

			results[i] = addr
		}
	}

	m.pool.RunAll(tasks)

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// selectNetworks implements spec.md §4.3 step 1: resolve requested UUIDs
// if given, else for project-scoped variants fetch project networks, for
// non-project-scoped variants fetch all non-VLAN networks.
func (m *Manager) selectNetworks(ctx context.Context, projectID string, requested []uuid.UUID) ([]api.Network, error) {
	if len(requested) > 0 {
		out := make([]api.Network, 0, len(requested))
		for _, id := range requested {
			n, err := m.db.NetworkGet(ctx, id)
			if err != nil {
				return nil, err
			}

			if m.variant.ProjectScoped() && n.ProjectID != "" && n.ProjectID != projectID {
				return nil, ErrNotAuthorized
			}

			out = append(out, n)
		}

		return out, nil
	}

	if m.variant.ProjectScoped() {
		return m.db.NetworksByProject(ctx, projectID)
	}

	return m.db.NetworksNonVLAN(ctx)
}

// DeallocateForInstance implements spec.md §4.3's deallocate_for_instance:
// releases floating IPs first, then fixed IPs, then VIFs; tolerates
// missing rows.
func (m *Manager) DeallocateForInstance(ctx context.Context, instanceUUID uuid.UUID) error {
	fips, err := m.db.FixedIPsByInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}

	if m.variant.SupportsFloatingIPs() && m.floating != nil {
		for _, fip := range fips {
			related, err := m.db.FloatingIPsByHost(ctx, m.localHost)
			if err != nil {
				return err
			}

			for _, f := range related {
				if f.FixedIPAddr != nil && *f.FixedIPAddr == fip.Address {
					if err := m.floating.Disassociate(ctx, f.Address); err != nil {
						logger.Warn("failed to disassociate floating ip during deallocate", logger.Ctx{"address": f.Address, "err": err})
					}
				}
			}
		}
	}

	for _, fip := range fips {
		if err := m.DeallocateFixedIP(ctx, fip.NetworkID, fip.Address, true); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}

	vifs, err := m.db.VirtualInterfacesByInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}

	for _, vif := range vifs {
		if err := m.db.VirtualInterfaceDelete(ctx, vif.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}

	return nil
}

// setupNetworkOnHost ensures the bridge/VLAN plumbing for n exists on
// this host. Concurrent allocations landing on the same network race to
// do this identical work, so it runs under a friendly lock keyed by
// network id: the first caller does the setup, the rest wait for it and
// skip their own call instead of repeating it.
func (m *Manager) setupNetworkOnHost(ctx context.Context, n api.Network) error {
	if m.driver == nil {
		return nil
	}

	friendly, unlock, unlockFriendly, err := locking.LockFriendly(ctx, "network-setup:"+n.ID.String())
	if err != nil {
		return fmt.Errorf("Failed to acquire network setup lock: %w", err)
	}

	if friendly {
		return nil
	}

	if err := m.driver.SetupNetworkOnHost(ctx, n); err != nil {
		unlock()
		return err
	}

	unlockFriendly()
	return nil
}

// resolveHost computes the Ownership Router's decision for n, falling back
// to an always-local decision when no Router was configured (tests and
// single-host deployments construct a Manager without one).
func (m *Manager) resolveHost(ctx context.Context, n api.Network, instanceHost string) (Decision, error) {
	if m.router == nil {
		return Decision{Host: m.localHost, Local: true}, nil
	}

	return m.router.Resolve(ctx, n, instanceHost)
}

// dispatch runs fn locally when decision.Local or no Router is configured,
// otherwise forwards op/args through the Router.
func (m *Manager) dispatch(ctx context.Context, decision Decision, op string, args any, fn func(ctx context.Context) (any, error)) (any, error) {
	if m.router == nil || decision.Local {
		return fn(ctx)
	}

	return m.router.Dispatch(ctx, decision, op, args, fn)
}

// dispatchTeardown is dispatch's DispatchTeardown-backed counterpart.
func (m *Manager) dispatchTeardown(ctx context.Context, decision Decision, op string, args any, fn, localFn func(ctx context.Context) (any, error)) (any, error) {
	if m.router == nil || decision.Local {
		return fn(ctx)
	}

	return m.router.DispatchTeardown(ctx, decision, op, args, fn, localFn)
}

// dhcpServerAddress implements the original's _get_dhcp_ip: a single-host
// network (or one configured to share_dhcp_address) hands out its gateway
// as the DHCP listener address; a multi-host network instead gives each
// host its own address, pool-allocated under a named lock keyed by network
// id so two concurrent allocators racing to discover it the first time
// settle on the same row (spec.md §5's get_dhcp).
func (m *Manager) dhcpServerAddress(ctx context.Context, n api.Network, instanceHost string) (net.IP, error) {
	if !n.MultiHost || m.cfg.ShareDHCPAddress() || instanceHost == "" {
		return net.ParseIP(n.Gateway), nil
	}

	pool := ipam.New(m.db, n.ID)

	if fip, err := pool.GetByHost(ctx, instanceHost); err == nil {
		return net.ParseIP(fip.Address), nil
	} else if !errors.Is(err, ipam.ErrNotFound) {
		return nil, err
	}

	unlock, err := locking.Lock(ctx, "get_dhcp:"+n.ID.String())
	if err != nil {
		return nil, fmt.Errorf("Failed to acquire dhcp address lock: %w", err)
	}
	defer unlock()

	if fip, err := pool.GetByHost(ctx, instanceHost); err == nil {
		return net.ParseIP(fip.Address), nil
	} else if !errors.Is(err, ipam.ErrNotFound) {
		return nil, err
	}

	addr, err := pool.AssociateHost(ctx, instanceHost)
	if err != nil {
		return nil, fmt.Errorf("Failed to allocate dhcp address for host %q: %w", instanceHost, err)
	}

	return net.ParseIP(addr), nil
}

// disassociateFixedIP implements the variant split in the original's
// deallocate_fixed_ip: the base behavior only marks the row unallocated
// and drops its VIF link, leaving instance_uuid for the Periodic Reaper
// to clear once fixed_ip_disassociate_timeout elapses; the Flat variant
// has no reaper, so it disassociates immediately instead.
func (m *Manager) disassociateFixedIP(ctx context.Context, networkID uuid.UUID, address string) error {
	if m.variant.ReaperEnabled() {
		return m.db.FixedIPMarkUnallocated(ctx, networkID, address)
	}

	return m.db.FixedIPDisassociate(ctx, networkID, address)
}
