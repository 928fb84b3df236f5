package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db/query"
)

// FloatingIPAllocateAddress reserves a free address in pool for projectID,
// per spec.md §4.4's allocate_for_instance/allocate_address operation.
// Fails with ErrNoMoreFixedIPs (reused here as the generic pool-exhaustion
// sentinel) when the pool has no unassigned addresses left.
func (d *DB) FloatingIPAllocateAddress(ctx context.Context, pool, projectID string) (string, error) {
	var address string

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT address FROM floating_ips
			WHERE pool = ? AND project_id IS NULL
			ORDER BY address LIMIT 1`, pool)

		if err := row.Scan(&address); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoMoreFixedIPs
			}

			return fmt.Errorf("Failed to select free floating ip: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE floating_ips SET project_id = ? WHERE address = ? AND project_id IS NULL`, projectID, address)
		if err != nil {
			return fmt.Errorf("Failed to reserve floating ip: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Failed to read affected rows: %w", err)
		}

		if n == 0 {
			return ErrNoMoreFixedIPs
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return address, nil
}

// FloatingIPBulkCreate materializes floating IP rows for a pool, per
// spec.md §4.4's create operation (operator-driven pool population).
func (d *DB) FloatingIPBulkCreate(ctx context.Context, addresses []string, pool string) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO floating_ips (address, pool, auto_assigned) VALUES (?, ?, 0)`)
		if err != nil {
			return fmt.Errorf("Failed to prepare floating ip insert: %w", err)
		}

		defer stmt.Close()

		for _, addr := range addresses {
			if _, err := stmt.ExecContext(ctx, addr, pool); err != nil {
				return fmt.Errorf("Failed to insert floating ip %s: %w", addr, err)
			}
		}

		return nil
	})
}

// FloatingIPAssociate links address to fixedIPAddr/fixedNetworkID, per
// spec.md §4.4's associate_floating_ip.
func (d *DB) FloatingIPAssociate(ctx context.Context, address, fixedIPAddr string, fixedNetworkID string, host *string, iface *string) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE floating_ips SET fixed_ip_address = ?, fixed_ip_network_id = ?, host = ?, interface = ? WHERE address = ?`,
		fixedIPAddr, fixedNetworkID, host, iface, address)
	if err != nil {
		return fmt.Errorf("Failed to associate floating ip: %w", err)
	}

	return nil
}

// FloatingIPDisassociate unlinks address from any fixed IP, per spec.md
// §4.4's disassociate_floating_ip. Returns the fixed IP address it was
// bound to (empty if none).
func (d *DB) FloatingIPDisassociate(ctx context.Context, address string) (string, error) {
	var fixedAddr sql.NullString

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT fixed_ip_address FROM floating_ips WHERE address = ?`, address)
		if err := row.Scan(&fixedAddr); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}

			return fmt.Errorf("Failed to read floating ip: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE floating_ips SET fixed_ip_address = NULL, fixed_ip_network_id = NULL, host = NULL, interface = NULL
			WHERE address = ?`, address)
		if err != nil {
			return fmt.Errorf("Failed to disassociate floating ip: %w", err)
		}

		return nil
	})

	return fixedAddr.String, err
}

// FloatingIPRelease releases a floating IP back to its pool, clearing
// project_id and auto_assigned (spec.md §4.4's deallocate_for_instance).
func (d *DB) FloatingIPRelease(ctx context.Context, address string) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE floating_ips SET project_id = NULL, auto_assigned = 0 WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("Failed to release floating ip: %w", err)
	}

	return nil
}

// FloatingIPGet fetches a single FloatingIP row.
func (d *DB) FloatingIPGet(ctx context.Context, address string) (api.FloatingIP, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT address, fixed_ip_address, project_id, pool, auto_assigned, host, interface
		FROM floating_ips WHERE address = ?`, address)

	var (
		f                                     api.FloatingIP
		fixedIPAddr, projectID, host, iface   sql.NullString
		autoAssigned                          int
	)

	err := row.Scan(&f.Address, &fixedIPAddr, &projectID, &f.Pool, &autoAssigned, &host, &iface)
	if err != nil {
		if err == sql.ErrNoRows {
			return api.FloatingIP{}, ErrNotFound
		}

		return api.FloatingIP{}, fmt.Errorf("Failed to scan floating ip: %w", err)
	}

	if fixedIPAddr.Valid {
		f.FixedIPAddr = &fixedIPAddr.String
	}

	if projectID.Valid {
		f.ProjectID = &projectID.String
	}

	if host.Valid {
		f.Host = &host.String
	}

	if iface.Valid {
		f.Interface = &iface.String
	}

	f.AutoAssigned = autoAssigned != 0

	return f, nil
}

// FloatingIPsByFixedAddress lists floating IPs currently bound to
// fixedAddr, used to assemble the floating_ips view on a FixedIPInfo
// (spec.md §6).
func (d *DB) FloatingIPsByFixedAddress(ctx context.Context, fixedAddr string) ([]api.FloatingIP, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT address, fixed_ip_address, project_id, pool, auto_assigned, host, interface
		FROM floating_ips WHERE fixed_ip_address = ?`, fixedAddr)
	if err != nil {
		return nil, fmt.Errorf("Failed to query floating ips by fixed address: %w", err)
	}

	defer rows.Close()

	var result []api.FloatingIP
	for rows.Next() {
		var (
			f                                 api.FloatingIP
			fixedIPAddr, projectID, h, iface  sql.NullString
			autoAssigned                      int
		)

		if err := rows.Scan(&f.Address, &fixedIPAddr, &projectID, &f.Pool, &autoAssigned, &h, &iface); err != nil {
			return nil, fmt.Errorf("Failed to scan floating ip: %w", err)
		}

		if fixedIPAddr.Valid {
			f.FixedIPAddr = &fixedIPAddr.String
		}

		if projectID.Valid {
			f.ProjectID = &projectID.String
		}

		if h.Valid {
			f.Host = &h.String
		}

		if iface.Valid {
			f.Interface = &iface.String
		}

		f.AutoAssigned = autoAssigned != 0
		result = append(result, f)
	}

	return result, rows.Err()
}

// FloatingIPsByHost lists floating IPs currently bound via host, used by
// the migration hand-off (spec.md §4.6).
func (d *DB) FloatingIPsByHost(ctx context.Context, host string) ([]api.FloatingIP, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT address, fixed_ip_address, project_id, pool, auto_assigned, host, interface
		FROM floating_ips WHERE host = ?`, host)
	if err != nil {
		return nil, fmt.Errorf("Failed to query floating ips by host: %w", err)
	}

	defer rows.Close()

	var result []api.FloatingIP
	for rows.Next() {
		var (
			f                                   api.FloatingIP
			fixedIPAddr, projectID, h, iface     sql.NullString
			autoAssigned                         int
		)

		if err := rows.Scan(&f.Address, &fixedIPAddr, &projectID, &f.Pool, &autoAssigned, &h, &iface); err != nil {
			return nil, fmt.Errorf("Failed to scan floating ip: %w", err)
		}

		if fixedIPAddr.Valid {
			f.FixedIPAddr = &fixedIPAddr.String
		}

		if projectID.Valid {
			f.ProjectID = &projectID.String
		}

		if h.Valid {
			f.Host = &h.String
		}

		if iface.Valid {
			f.Interface = &iface.String
		}

		f.AutoAssigned = autoAssigned != 0
		result = append(result, f)
	}

	return result, rows.Err()
}

// FloatingIPsAll lists every floating IP, used by the operator CLI's
// list-floating-ips (cmd/netfleetctl).
func (d *DB) FloatingIPsAll(ctx context.Context) ([]api.FloatingIP, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT address, fixed_ip_address, project_id, pool, auto_assigned, host, interface
		FROM floating_ips`)
	if err != nil {
		return nil, fmt.Errorf("Failed to query floating ips: %w", err)
	}

	defer rows.Close()

	var result []api.FloatingIP
	for rows.Next() {
		var (
			f                                api.FloatingIP
			fixedIPAddr, projectID, h, iface sql.NullString
			autoAssigned                     int
		)

		if err := rows.Scan(&f.Address, &fixedIPAddr, &projectID, &f.Pool, &autoAssigned, &h, &iface); err != nil {
			return nil, fmt.Errorf("Failed to scan floating ip: %w", err)
		}

		if fixedIPAddr.Valid {
			f.FixedIPAddr = &fixedIPAddr.String
		}

		if projectID.Valid {
			f.ProjectID = &projectID.String
		}

		if h.Valid {
			f.Host = &h.String
		}

		if iface.Valid {
			f.Interface = &iface.String
		}

		f.AutoAssigned = autoAssigned != 0
		result = append(result, f)
	}

	return result, rows.Err()
}
