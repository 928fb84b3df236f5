package netmanager

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/db"
)

// FixedIPHostResolver implements floatingip.HostResolver against the
// shared database: a fixed ip's owning host is its network's host for a
// single-host network, or the host recorded on the fixed ip row itself
// (set by AllocateFixedIP, spec.md §4.2) for a multi-host one.
type FixedIPHostResolver struct {
	DB *db.DB
}

// HostForFixedIP implements floatingip.HostResolver.
func (r *FixedIPHostResolver) HostForFixedIP(ctx context.Context, networkID, address string) (string, error) {
	return resolveFixedIPHost(ctx, r.DB, networkID, address)
}

func resolveFixedIPHost(ctx context.Context, d *db.DB, networkIDStr, address string) (string, error) {
	networkID, err := uuid.Parse(networkIDStr)
	if err != nil {
		return "", fmt.Errorf("Invalid network id %q: %w", networkIDStr, err)
	}

	n, err := d.NetworkGet(ctx, networkID)
	if err != nil {
		return "", err
	}

	if !n.MultiHost {
		return n.Host, nil
	}

	fip, err := d.FixedIPGet(ctx, networkID, address)
	if err != nil {
		return "", err
	}

	if fip.Host == nil {
		return "", fmt.Errorf("fixed ip %s on network %s has no recorded host", address, networkID)
	}

	return *fip.Host, nil
}
