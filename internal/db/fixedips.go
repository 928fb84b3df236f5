package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db/query"
)

// FixedIPBulkCreate materializes one FixedIP row per address, with
// reserved bits set per the caller's policy (spec.md §4.1 bulk_create). It
// runs as the Network's own creation transaction would, a separate
// transaction here since the caller already committed the Network row.
func (d *DB) FixedIPBulkCreate(ctx context.Context, networkID uuid.UUID, addresses []string, isReserved func(index, count int) bool) error {
	now := time.Now()

	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fixed_ips (address, network_id, reserved, allocated, leased, created_at, updated_at)
			VALUES (?, ?, ?, 0, 0, ?, ?)`)
		if err != nil {
			return fmt.Errorf("Failed to prepare fixed ip insert: %w", err)
		}

		defer stmt.Close()

		count := len(addresses)
		for i, addr := range addresses {
			reserved := boolToInt(isReserved(i, count))
			if _, err := stmt.ExecContext(ctx, addr, networkID.String(), reserved, now, now); err != nil {
				return fmt.Errorf("Failed to insert fixed ip %s: %w", addr, err)
			}
		}

		return nil
	})
}

// FixedIPAssociatePool picks any unallocated FixedIP in the network with
// reserved == wantReserved and assigns it to instanceUUID, per spec.md
// §4.1's associate(network_id, instance_uuid, reserved) operation. The
// UPDATE...WHERE with a subquery and SQLite's serializable isolation
// ensures two concurrent callers never win the same row (invariant 5,
// spec.md §8).
func (d *DB) FixedIPAssociatePool(ctx context.Context, networkID uuid.UUID, instanceUUID uuid.UUID, wantReserved bool) (string, error) {
	var address string

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT address FROM fixed_ips
			WHERE network_id = ? AND allocated = 0 AND reserved = ?
			ORDER BY address LIMIT 1`, networkID.String(), boolToInt(wantReserved))

		if err := row.Scan(&address); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoMoreFixedIPs
			}

			return fmt.Errorf("Failed to select free fixed ip: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET allocated = 1, instance_uuid = ?, updated_at = ?
			WHERE network_id = ? AND address = ? AND allocated = 0`,
			instanceUUID.String(), time.Now(), networkID.String(), address)
		if err != nil {
			return fmt.Errorf("Failed to associate fixed ip: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Failed to read affected rows: %w", err)
		}

		if n == 0 {
			// Lost the race to a concurrent allocator between SELECT and
			// UPDATE; reported as pool exhaustion, and no caller retries.
			return ErrNoMoreFixedIPs
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return address, nil
}

// FixedIPAssociate targets a specific address, per spec.md §4.1's
// associate(address, network_id, instance_uuid, reserved) operation.
// Fails with ErrFixedIPAlreadyInUse if already allocated to a different
// instance.
func (d *DB) FixedIPAssociate(ctx context.Context, networkID uuid.UUID, address string, instanceUUID uuid.UUID, reserved bool) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		var allocated int
		var existingInstance sql.NullString

		row := tx.QueryRowContext(ctx, `
			SELECT allocated, instance_uuid FROM fixed_ips WHERE network_id = ? AND address = ?`,
			networkID.String(), address)
		if err := row.Scan(&allocated, &existingInstance); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}

			return fmt.Errorf("Failed to read fixed ip: %w", err)
		}

		if allocated != 0 {
			if !existingInstance.Valid || existingInstance.String != instanceUUID.String() {
				return ErrFixedIPAlreadyInUse
			}

			return nil // Idempotent re-associate to the same instance.
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET allocated = 1, reserved = ?, instance_uuid = ?, updated_at = ?
			WHERE network_id = ? AND address = ?`,
			boolToInt(reserved), instanceUUID.String(), time.Now(), networkID.String(), address)
		if err != nil {
			return fmt.Errorf("Failed to associate fixed ip: %w", err)
		}

		return nil
	})
}

// FixedIPDisassociate clears instance and VIF linkage for address and sets
// allocated=false immediately, leaving reserved unchanged (spec.md §4.1
// disassociate; the original's FlatManager additionally calls this right
// after its base deallocate_fixed_ip since the Flat variant has no
// timeout reaper to do it later).
func (d *DB) FixedIPDisassociate(ctx context.Context, networkID uuid.UUID, address string) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET allocated = 0, instance_uuid = NULL, vif_id = NULL, updated_at = ?
			WHERE network_id = ? AND address = ?`, time.Now(), networkID.String(), address)
		if err != nil {
			return fmt.Errorf("Failed to disassociate fixed ip: %w", err)
		}

		return nil
	})
}

// FixedIPMarkUnallocated sets allocated=false and clears the VIF link,
// but leaves instance_uuid intact — the base deallocate_fixed_ip
// behavior for variants with a timeout reaper (FlatDHCP, VLAN), which
// rely on ReapDisassociate to clear instance_uuid once
// fixed_ip_disassociate_timeout has elapsed (spec.md §4.1, §4.7).
func (d *DB) FixedIPMarkUnallocated(ctx context.Context, networkID uuid.UUID, address string) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE fixed_ips SET allocated = 0, vif_id = NULL, updated_at = ?
		WHERE network_id = ? AND address = ?`, time.Now(), networkID.String(), address)
	if err != nil {
		return fmt.Errorf("Failed to mark fixed ip unallocated: %w", err)
	}

	return nil
}

// FixedIPSetVIF points address at vif, per spec.md §4.3
// allocate_fixed_ip step (b).
func (d *DB) FixedIPSetVIF(ctx context.Context, networkID uuid.UUID, address string, vifID uuid.UUID) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE fixed_ips SET vif_id = ?, updated_at = ? WHERE network_id = ? AND address = ?`,
		vifID.String(), time.Now(), networkID.String(), address)
	if err != nil {
		return fmt.Errorf("Failed to set fixed ip vif: %w", err)
	}

	return nil
}

// FixedIPSetHost records the host an instance-owned fixed ip was allocated
// for (spec.md §4.2): the Ownership Router and the Floating IP Engine's
// HostResolver both read this back to decide where a multi-host network's
// mutations belong.
func (d *DB) FixedIPSetHost(ctx context.Context, networkID uuid.UUID, address, host string) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE fixed_ips SET host = ?, updated_at = ? WHERE network_id = ? AND address = ?`,
		host, time.Now(), networkID.String(), address)
	if err != nil {
		return fmt.Errorf("Failed to set fixed ip host: %w", err)
	}

	return nil
}

// FixedIPGetByNetworkHost finds the host-keyed placeholder fixed ip
// reserved as a multi-host network's per-host DHCP listener address
// (original's _get_dhcp_ip, spec.md §5): an unallocated-to-an-instance row
// with host already set to host.
func (d *DB) FixedIPGetByNetworkHost(ctx context.Context, networkID uuid.UUID, host string) (api.FixedIP, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT address, network_id, reserved, allocated, leased, instance_uuid, vif_id, host, created_at, updated_at
		FROM fixed_ips WHERE network_id = ? AND host = ? AND instance_uuid IS NULL
		ORDER BY address LIMIT 1`, networkID.String(), host)

	return scanFixedIP(row)
}

// FixedIPAssociateHostPool pool-allocates a fixed ip as host's per-host DHCP
// listener address on a multi-host network: picks any unallocated,
// non-reserved, host-less row and assigns it to host instead of an
// instance. Mirrors FixedIPAssociatePool's UPDATE...WHERE race guard.
func (d *DB) FixedIPAssociateHostPool(ctx context.Context, networkID uuid.UUID, host string) (string, error) {
	var address string

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT address FROM fixed_ips
			WHERE network_id = ? AND allocated = 0 AND reserved = 0 AND host IS NULL
			ORDER BY address LIMIT 1`, networkID.String())

		if err := row.Scan(&address); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoMoreFixedIPs
			}

			return fmt.Errorf("Failed to select free fixed ip for dhcp host: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET host = ?, updated_at = ?
			WHERE network_id = ? AND address = ? AND host IS NULL`,
			host, time.Now(), networkID.String(), address)
		if err != nil {
			return fmt.Errorf("Failed to associate dhcp host fixed ip: %w", err)
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

// FixedIPLease sets leased=true, per the DHCP bridge callback
// lease_fixed_ip (spec.md §4.3).
func (d *DB) FixedIPLease(ctx context.Context, networkID uuid.UUID, address string) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE fixed_ips SET leased = 1, updated_at = ? WHERE network_id = ? AND address = ?`,
		time.Now(), networkID.String(), address)
	if err != nil {
		return fmt.Errorf("Failed to lease fixed ip: %w", err)
	}

	return nil
}

// FixedIPRelease sets leased=false and, if the address is not allocated,
// also disassociates it (spec.md §4.3 release_fixed_ip).
func (d *DB) FixedIPRelease(ctx context.Context, networkID uuid.UUID, address string) error {
	return query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET leased = 0, updated_at = ? WHERE network_id = ? AND address = ?`,
			time.Now(), networkID.String(), address)
		if err != nil {
			return fmt.Errorf("Failed to release fixed ip lease: %w", err)
		}

		var allocated int
		row := tx.QueryRowContext(ctx, `SELECT allocated FROM fixed_ips WHERE network_id = ? AND address = ?`, networkID.String(), address)
		if err := row.Scan(&allocated); err != nil {
			return fmt.Errorf("Failed to read fixed ip: %w", err)
		}

		if allocated == 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE fixed_ips SET instance_uuid = NULL, vif_id = NULL, updated_at = ?
				WHERE network_id = ? AND address = ?`, time.Now(), networkID.String(), address)
			if err != nil {
				return fmt.Errorf("Failed to disassociate released fixed ip: %w", err)
			}
		}

		return nil
	})
}

// FixedIPGet fetches a single FixedIP row.
func (d *DB) FixedIPGet(ctx context.Context, networkID uuid.UUID, address string) (api.FixedIP, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT address, network_id, reserved, allocated, leased, instance_uuid, vif_id, host, created_at, updated_at
		FROM fixed_ips WHERE network_id = ? AND address = ?`, networkID.String(), address)

	return scanFixedIP(row)
}

func scanFixedIP(row *sql.Row) (api.FixedIP, error) {
	var (
		f                         api.FixedIP
		networkIDStr              string
		reserved, allocated, leased int
		instanceUUID, vifID, host sql.NullString
	)

	err := row.Scan(&f.Address, &networkIDStr, &reserved, &allocated, &leased, &instanceUUID, &vifID, &host, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return api.FixedIP{}, ErrNotFound
		}

		return api.FixedIP{}, fmt.Errorf("Failed to scan fixed ip: %w", err)
	}

	f.NetworkID = uuid.MustParse(networkIDStr)
	f.Reserved = reserved != 0
	f.Allocated = allocated != 0
	f.Leased = leased != 0

	if instanceUUID.Valid {
		id := uuid.MustParse(instanceUUID.String)
		f.InstanceUUID = &id
	}

	if vifID.Valid {
		id := uuid.MustParse(vifID.String)
		f.VIFID = &id
	}

	if host.Valid {
		h := host.String
		f.Host = &h
	}

	return f, nil
}

// FixedIPsByInstance lists all FixedIP rows currently allocated to instanceUUID.
func (d *DB) FixedIPsByInstance(ctx context.Context, instanceUUID uuid.UUID) ([]api.FixedIP, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT address, network_id, reserved, allocated, leased, instance_uuid, vif_id, host, created_at, updated_at
		FROM fixed_ips WHERE instance_uuid = ?`, instanceUUID.String())
	if err != nil {
		return nil, fmt.Errorf("Failed to query fixed ips by instance: %w", err)
	}

	defer rows.Close()

	var result []api.FixedIP
	for rows.Next() {
		var (
			f                             api.FixedIP
			networkIDStr                  string
			reserved, allocated, leased   int
			instanceUUIDCol, vifID, host sql.NullString
		)

		if err := rows.Scan(&f.Address, &networkIDStr, &reserved, &allocated, &leased, &instanceUUIDCol, &vifID, &host, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("Failed to scan fixed ip: %w", err)
		}

		f.NetworkID = uuid.MustParse(networkIDStr)
		f.Reserved = reserved != 0
		f.Allocated = allocated != 0
		f.Leased = leased != 0

		if instanceUUIDCol.Valid {
			id := uuid.MustParse(instanceUUIDCol.String)
			f.InstanceUUID = &id
		}

		if vifID.Valid {
			id := uuid.MustParse(vifID.String)
			f.VIFID = &id
		}

		if host.Valid {
			h := host.String
			f.Host = &h
		}

		result = append(result, f)
	}

	return result, rows.Err()
}

// ReapDisassociate bulk-disassociates every FixedIP whose updated_at
// predates cutoff and which is not currently allocated, per spec.md §4.7.
// Returns the count affected.
func (d *DB) ReapDisassociate(ctx context.Context, cutoff time.Time) (int, error) {
	var count int

	err := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE fixed_ips SET instance_uuid = NULL, vif_id = NULL, updated_at = ?
			WHERE allocated = 0 AND updated_at < ? AND instance_uuid IS NOT NULL`, time.Now(), cutoff)
		if err != nil {
			return fmt.Errorf("Failed to reap fixed ips: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Failed to read affected rows: %w", err)
		}

		count = int(n)
		return nil
	})

	return count, err
}

// NetworkFixedIPCounts returns (allocated, reserved, free) for a network
// — used to check spec.md §8 invariant 2.
func (d *DB) NetworkFixedIPCounts(ctx context.Context, networkID uuid.UUID) (allocated, reserved, free int, err error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM fixed_ips WHERE network_id = ? AND allocated = 1`, networkID.String())
	if err = row.Scan(&allocated); err != nil {
		return 0, 0, 0, fmt.Errorf("Failed to count allocated fixed ips: %w", err)
	}

	row = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM fixed_ips WHERE network_id = ? AND reserved = 1`, networkID.String())
	if err = row.Scan(&reserved); err != nil {
		return 0, 0, 0, fmt.Errorf("Failed to count reserved fixed ips: %w", err)
	}

	row = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM fixed_ips WHERE network_id = ? AND allocated = 0 AND reserved = 0`, networkID.String())
	if err = row.Scan(&free); err != nil {
		return 0, 0, 0, fmt.Errorf("Failed to count free fixed ips: %w", err)
	}

	return allocated, reserved, free, nil
}
