// Package floatingip is the Floating IP Engine of spec.md §4.5:
// quota-gated pool allocation, associate/disassociate with stale-
// reference detection, and migration start/finish hand-off.
package floatingip

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/metrics"
	"github.com/hostfleet/fleetnet/internal/revert"
)

// Sentinel errors, per spec.md §7.
var (
	ErrNotFound              = db.ErrNotFound
	ErrNoFloatingIPsLeft     = db.ErrNoMoreFixedIPs
	ErrNoFloatingIPInterface = errors.New("cannot find floating ip interface")
	ErrAssociated            = errors.New("floating ip has a fixed ip reference and cannot be deallocated")
	ErrWrongHost             = errors.New("fixed ip is not owned by this host")
)

// QuotaReserver brackets a quota reservation the way spec.md §4.5
// describes: "a reservation is acquired ... then the reservation is
// committed (rolled back on failure)". Auto-assigned allocations bypass
// this entirely.
type QuotaReserver interface {
	Reserve(ctx context.Context, projectID string) (commit func(), rollback func(), err error)
}

// L3Driver is the narrow driver surface the engine calls into for the
// actual plumbing (spec.md §4.5); deliberately out of scope per spec.md
// §1 ("DHCP and L3 driver internals"), so fleetnet only defines the
// interface callers must satisfy.
type L3Driver interface {
	AddFloatingIP(ctx context.Context, floating, fixed, iface string) error
	RemoveFloatingIP(ctx context.Context, floating, fixed, iface string) error
}

// HostResolver answers "which host owns this fixed IP's network" per the
// Ownership Router (spec.md §4.2); internal/netmanager supplies the real
// implementation.
type HostResolver interface {
	HostForFixedIP(ctx context.Context, networkID, address string) (string, error)
}

// Engine is the Floating IP Engine.
type Engine struct {
	db       *db.DB
	quota    QuotaReserver
	driver   L3Driver
	hosts    HostResolver
	localHost string
}

// New returns an Engine bound to the given storage, quota and driver
// collaborators.
func New(d *db.DB, quota QuotaReserver, driver L3Driver, hosts HostResolver, localHost string) *Engine {
	return &Engine{db: d, quota: quota, driver: driver, hosts: hosts, localHost: localHost}
}

// Allocate acquires a quota reservation (unless autoAssigned), then pulls
// a free address from pool for projectID, committing or rolling back the
// reservation to match (spec.md §4.5).
func (e *Engine) Allocate(ctx context.Context, pool, projectID string, autoAssigned bool) (string, error) {
	if autoAssigned {
		addr, err := e.db.FloatingIPAllocateAddress(ctx, pool, projectID)
		return addr, translateErr(err)
	}

	commit, rollback, err := e.quota.Reserve(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("Failed to reserve floating ip quota: %w", err)
	}

	addr, err := e.db.FloatingIPAllocateAddress(ctx, pool, projectID)
	if err != nil {
		rollback()
		return "", translateErr(err)
	}

	commit()

	return addr, nil
}

// Release returns a floating IP to its pool, refusing if it still has a
// fixed IP reference (spec.md §3 FloatingIP invariant).
func (e *Engine) Release(ctx context.Context, address string) error {
	fip, err := e.db.FloatingIPGet(ctx, address)
	if err != nil {
		return translateErr(err)
	}

	if fip.FixedIPAddr != nil {
		return ErrAssociated
	}

	return translateErr(e.db.FloatingIPRelease(ctx, address))
}

// Associate implements spec.md §4.5's associate_floating_ip: disassociate
// any prior binding (returning its fixed IP to the caller is the caller's
// responsibility via the return value), resolve the owning host of
// fixedNetworkID/fixedAddr, record the DB link, then call the L3 driver;
// on a "Cannot find device" driver failure the DB link is rolled back and
// ErrNoFloatingIPInterface is returned.
//
// Callers are expected to have already routed this call to the owning
// host via the Ownership Router (spec.md §4.2); if the resolver disagrees
// with that routing decision, Associate refuses rather than plumbing the
// driver against the wrong host.
func (e *Engine) Associate(ctx context.Context, floatingAddr, fixedNetworkID, fixedAddr, iface string) (previousFixedAddr string, err error) {
	host, err := e.hosts.HostForFixedIP(ctx, fixedNetworkID, fixedAddr)
	if err != nil {
		return "", fmt.Errorf("Failed to resolve owning host for fixed ip: %w", err)
	}

	if host != e.localHost {
		return "", fmt.Errorf("%w: fixed ip %s on network %s is owned by host %q, not local host %q",
			ErrWrongHost, fixedAddr, fixedNetworkID, host, e.localHost)
	}

	previousFixedAddr, err = e.db.FloatingIPDisassociate(ctx, floatingAddr)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", translateErr(err)
	}

	r := revert.New()
	defer r.Fail()

	if err := e.db.FloatingIPAssociate(ctx, floatingAddr, fixedAddr, fixedNetworkID, &host, &iface); err != nil {
		return "", fmt.Errorf("Failed to record floating ip association: %w", err)
	}

	r.Add(func() { _, _ = e.db.FloatingIPDisassociate(context.Background(), floatingAddr) })

	if err := e.driver.AddFloatingIP(ctx, floatingAddr, fixedAddr, iface); err != nil {
		if strings.Contains(err.Error(), "Cannot find device") {
			return "", ErrNoFloatingIPInterface
		}

		return "", fmt.Errorf("Failed to plumb floating ip: %w", err)
	}

	r.Success()

	return previousFixedAddr, nil
}

// Disassociate unlinks floatingAddr from any fixed IP, calling the driver
// to remove the plumbing first.
func (e *Engine) Disassociate(ctx context.Context, floatingAddr string) error {
	fip, err := e.db.FloatingIPGet(ctx, floatingAddr)
	if err != nil {
		return translateErr(err)
	}

	if fip.FixedIPAddr == nil {
		return nil
	}

	iface := ""
	if fip.Interface != nil {
		iface = *fip.Interface
	}

	if err := e.driver.RemoveFloatingIP(ctx, floatingAddr, *fip.FixedIPAddr, iface); err != nil {
		return fmt.Errorf("Failed to unplumb floating ip: %w", err)
	}

	_, err = e.db.FloatingIPDisassociate(ctx, floatingAddr)
	return translateErr(err)
}

// MigrateInstanceStart removes the plumbing on this host for the floating
// IPs recorded against it that point at instanceFixedAddrs. It writes no
// floating IP row: each row's host is left as it was.
func (e *Engine) MigrateInstanceStart(ctx context.Context, instanceFixedAddrs []string) error {
	for _, addr := range instanceFixedAddrs {
		fips, err := e.floatingForFixed(ctx, addr)
		if err != nil {
			return err
		}

		for _, fip := range fips {
			iface := ""
			if fip.Interface != nil {
				iface = *fip.Interface
			}

			if err := e.driver.RemoveFloatingIP(ctx, fip.Address, addr, iface); err != nil {
				return fmt.Errorf("Failed to unplumb floating ip %q during migration start: %w", fip.Address, err)
			}
		}
	}

	return nil
}

// MigrateInstanceFinish re-adds plumbing on this host for the floating IPs
// recorded against it that point at instanceFixedAddrs. destHost is not
// used: no floating IP row is written, so each row's host stays as it was.
// Stale references (the floating IP no longer belongs to the instance)
// are skipped with a warning, never errored.
func (e *Engine) MigrateInstanceFinish(ctx context.Context, instanceFixedAddrs []string, destHost string) error {
	for _, addr := range instanceFixedAddrs {
		fips, err := e.floatingForFixed(ctx, addr)
		if err != nil {
			return err
		}

		for _, fip := range fips {
			if e.isStale(fip) {
				logger.Warn("skipping stale floating ip during migration finish", logger.Ctx{"address": fip.Address})
				continue
			}

			iface := ""
			if fip.Interface != nil {
				iface = *fip.Interface
			}

			if err := e.driver.AddFloatingIP(ctx, fip.Address, addr, iface); err != nil {
				return fmt.Errorf("Failed to replumb floating ip %q during migration finish: %w", fip.Address, err)
			}
		}
	}

	return nil
}

// isStale implements spec.md §4.5's "Stale-floating-IP predicate ...: the
// IP is stale iff ownership check fails OR no fixed_ip is associated."
func (e *Engine) isStale(fip api.FloatingIP) bool {
	return fip.ProjectID == nil || fip.FixedIPAddr == nil
}

func (e *Engine) floatingForFixed(ctx context.Context, fixedAddr string) ([]api.FloatingIP, error) {
	all, err := e.db.FloatingIPsByHost(ctx, e.localHost)
	if err != nil {
		return nil, fmt.Errorf("Failed to list floating ips for host: %w", err)
	}

	var out []api.FloatingIP
	for _, f := range all {
		if f.FixedIPAddr != nil && *f.FixedIPAddr == fixedAddr {
			out = append(out, f)
		}
	}

	return out, nil
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrNoMoreFixedIPs):
		metrics.PoolExhaustion.WithLabelValues("floating_ip").Inc()
		return ErrNoFloatingIPsLeft
	default:
		return err
	}
}
