package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db/query"
)

// NetworkCreate inserts a new Network row.
func (d *DB) NetworkCreate(ctx context.Context, n api.Network) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		return networkInsert(ctx, tx, n)
	})
}

func networkInsert(ctx context.Context, tx *sql.Tx, n api.Network) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO networks (
			id, numeric_id, label, cidr, cidr_v6, gateway, gateway_v6, bridge,
			bridge_interface, dns, vlan, vpn_public_address, vpn_private_address,
			vpn_public_port, multi_host, host, project_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.NumericID, n.Label, n.CIDR, n.CIDRv6, n.Gateway, n.GatewayV6, n.Bridge,
		n.BridgeInterface, strings.Join(n.DNS, ","), nullableInt64(n.VlanTag), n.VPNPublicAddr, n.VPNPrivateAddr,
		nullableInt64(n.VPNPublicPort), boolToInt(n.MultiHost), nullString(n.Host), nullString(n.ProjectID), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Failed to insert network: %w", err)
	}

	return nil
}

// NetworkGet fetches a Network by id.
func (d *DB) NetworkGet(ctx context.Context, id uuid.UUID) (api.Network, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, numeric_id, label, cidr, cidr_v6, gateway, gateway_v6, bridge,
			bridge_interface, dns, vlan, vpn_public_address, vpn_private_address,
			vpn_public_port, multi_host, host, project_id, created_at
		FROM networks WHERE id = ?`, id.String())

	return scanNetwork(row)
}

func scanNetwork(row *sql.Row) (api.Network, error) {
	var (
		n                                                      api.Network
		idStr                                                  string
		dnsJoined                                              string
		vlan, vpnPort                                           sql.NullInt64
		host, projectID                                        sql.NullString
		multiHost                                              int
	)

	err := row.Scan(&idStr, &n.NumericID, &n.Label, &n.CIDR, &n.CIDRv6, &n.Gateway, &n.GatewayV6, &n.Bridge,
		&n.BridgeInterface, &dnsJoined, &vlan, &n.VPNPublicAddr, &n.VPNPrivateAddr,
		&vpnPort, &multiHost, &host, &projectID, &n.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return api.Network{}, ErrNotFound
		}

		return api.Network{}, fmt.Errorf("Failed to scan network: %w", err)
	}

	n.ID = uuid.MustParse(idStr)
	if dnsJoined != "" {
		n.DNS = strings.Split(dnsJoined, ",")
	}

	if vlan.Valid {
		n.VlanTag = &vlan.Int64
	}

	if vpnPort.Valid {
		n.VPNPublicPort = &vpnPort.Int64
	}

	n.MultiHost = multiHost != 0
	n.Host = host.String
	n.ProjectID = projectID.String

	return n, nil
}

// NetworkSetHost lazily assigns the owning host for a network that has
// none yet, atomically: spec.md §4.2, "When network.host is unset at
// allocation time, the router lazily assigns the current host and records
// it atomically." Returns the host now recorded (which may be a
// concurrent winner's host, not necessarily ours).
func (d *DB) NetworkSetHost(ctx context.Context, id uuid.UUID, host string) (string, error) {
	var winner string

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT host FROM networks WHERE id = ?`, id.String())

		var existing sql.NullString
		if err := row.Scan(&existing); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}

			return fmt.Errorf("Failed to read network host: %w", err)
		}

		if existing.Valid && existing.String != "" {
			winner = existing.String
			return nil
		}

		_, err := tx.ExecContext(ctx, `UPDATE networks SET host = ? WHERE id = ? AND (host IS NULL OR host = '')`, host, id.String())
		if err != nil {
			return fmt.Errorf("Failed to set network host: %w", err)
		}

		winner = host
		return nil
	})

	return winner, err
}

// NetworkForceSetHost unconditionally overwrites a network's host, used by
// migration hand-off (spec.md §4.5: migrate_instance_start nulls host,
// migrate_instance_finish sets host=dest), unlike NetworkSetHost's
// compare-and-swap used at first allocation.
func (d *DB) NetworkForceSetHost(ctx context.Context, id uuid.UUID, host string) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE networks SET host = ? WHERE id = ?`, nullString(host), id.String())
	if err != nil {
		return fmt.Errorf("Failed to set network host: %w", err)
	}

	return nil
}

// DeleteNetwork removes a Network and all its FixedIP rows.
func (d *DB) DeleteNetwork(ctx context.Context, id uuid.UUID) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fixed_ips WHERE network_id = ?`, id.String()); err != nil {
			return fmt.Errorf("Failed to delete fixed ips: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("Failed to delete network: %w", err)
		}

		return nil
	})
}

// NetworksByProject lists every Network scoped to projectID, used by
// select_networks for project-scoped topology variants (spec.md §4.3
// step 1).
func (d *DB) NetworksByProject(ctx context.Context, projectID string) ([]api.Network, error) {
	return d.queryNetworks(ctx, `
		SELECT id, numeric_id, label, cidr, cidr_v6, gateway, gateway_v6, bridge,
			bridge_interface, dns, vlan, vpn_public_address, vpn_private_address,
			vpn_public_port, multi_host, host, project_id, created_at
		FROM networks WHERE project_id = ?`, projectID)
}

// NetworksNonVLAN lists every Network with no vlan tag, used by
// select_networks for non-project-scoped topology variants (spec.md §4.3
// step 1: "for non-VLAN fetch all non-VLAN networks").
func (d *DB) NetworksNonVLAN(ctx context.Context) ([]api.Network, error) {
	return d.queryNetworks(ctx, `
		SELECT id, numeric_id, label, cidr, cidr_v6, gateway, gateway_v6, bridge,
			bridge_interface, dns, vlan, vpn_public_address, vpn_private_address,
			vpn_public_port, multi_host, host, project_id, created_at
		FROM networks WHERE vlan IS NULL`)
}

func (d *DB) queryNetworks(ctx context.Context, query string, args ...any) ([]api.Network, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Failed to query networks: %w", err)
	}

	defer rows.Close()

	var result []api.Network
	for rows.Next() {
		var (
			n                                                      api.Network
			idStr                                                  string
			dnsJoined                                              string
			vlan, vpnPort                                           sql.NullInt64
			host, projectID                                        sql.NullString
			multiHost                                              int
		)

		err := rows.Scan(&idStr, &n.NumericID, &n.Label, &n.CIDR, &n.CIDRv6, &n.Gateway, &n.GatewayV6, &n.Bridge,
			&n.BridgeInterface, &dnsJoined, &vlan, &n.VPNPublicAddr, &n.VPNPrivateAddr,
			&vpnPort, &multiHost, &host, &projectID, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("Failed to scan network: %w", err)
		}

		n.ID = uuid.MustParse(idStr)
		if dnsJoined != "" {
			n.DNS = strings.Split(dnsJoined, ",")
		}

		if vlan.Valid {
			n.VlanTag = &vlan.Int64
		}

		if vpnPort.Valid {
			n.VPNPublicPort = &vpnPort.Int64
		}

		n.MultiHost = multiHost != 0
		n.Host = host.String
		n.ProjectID = projectID.String

		result = append(result, n)
	}

	return result, rows.Err()
}

// AllNetworkIDs lists every Network's id, used by read paths that need to
// scan every network (overlap checks at create time, reverse lookups).
func (d *DB) AllNetworkIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id FROM networks`)
	if err != nil {
		return nil, fmt.Errorf("Failed to query network ids: %w", err)
	}

	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("Failed to scan network id: %w", err)
		}

		ids = append(ids, uuid.MustParse(idStr))
	}

	return ids, rows.Err()
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
