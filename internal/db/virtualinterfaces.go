package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/google/uuid"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/db/query"
	"github.com/hostfleet/fleetnet/internal/revert"
)

// GenerateMAC returns a locally-administered unicast MAC address, per
// spec.md §4.3's generate_mac_address.
func GenerateMAC() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("Failed to read random bytes: %w", err)
	}

	buf[0] = (buf[0] | 0x02) & 0xfe // Locally administered, unicast.

	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", buf[0], buf[1], buf[2], buf[3], buf[4], buf[5]), nil
}

// VirtualInterfaceCreate inserts a VIF with a freshly generated MAC
// address, retrying on collision up to maxAttempts times (spec.md §4.3
// create_vif / "fails the overall operation ... after exhausting
// create_unique_mac_address_attempts retries", invariant 6 of spec.md §8).
// It creates no more than the one VIF and rolls nothing back itself; see
// VirtualInterfaceCreateWithRevert for unwinding earlier VIFs of an
// instance.
func VirtualInterfaceCreate(ctx context.Context, d *DB, instanceUUID, networkID uuid.UUID, maxAttempts int64) (api.VIF, error) {
	var vif api.VIF

	err := retry.Retry(func(attempt uint) error {
		mac, err := GenerateMAC()
		if err != nil {
			return err
		}

		id := uuid.New()

		insertErr := query.Transaction(ctx, d.sql, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO virtual_interfaces (id, mac_address, instance_uuid, network_id)
				VALUES (?, ?, ?, ?)`, id.String(), mac, instanceUUID.String(), networkID.String())

			return err
		})
		if insertErr != nil {
			if isUniqueConstraintErr(insertErr) {
				return ErrMACAddressInUse
			}

			return retry.Stop(fmt.Errorf("Failed to insert virtual interface: %w", insertErr))
		}

		vif = api.VIF{ID: id, MACAddress: mac, InstanceUUID: instanceUUID, NetworkID: networkID}

		return nil
	}, strategy.Limit(uint(maxAttempts)))

	if err != nil {
		return api.VIF{}, fmt.Errorf("Failed to allocate unique mac address: %w", err)
	}

	return vif, nil
}

// VirtualInterfaceCreateWithRevert is VirtualInterfaceCreate, additionally
// registering the created VIF's deletion with r so a caller can unwind a
// partially-completed multi-VIF allocation (spec.md §4.3 "rolls back all
// VIFs created for the instance so far").
func VirtualInterfaceCreateWithRevert(ctx context.Context, d *DB, r *revert.Reverter, instanceUUID, networkID uuid.UUID, maxAttempts int64) (api.VIF, error) {
	vif, err := VirtualInterfaceCreate(ctx, d, instanceUUID, networkID, maxAttempts)
	if err != nil {
		return api.VIF{}, err
	}

	r.Add(func() {
		_ = d.VirtualInterfaceDelete(context.Background(), vif.ID)
	})

	return vif, nil
}

// VirtualInterfaceDelete removes a VIF by id.
func (d *DB) VirtualInterfaceDelete(ctx context.Context, id uuid.UUID) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM virtual_interfaces WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("Failed to delete virtual interface: %w", err)
	}

	return nil
}

// VirtualInterfaceGet fetches a VIF by id.
func (d *DB) VirtualInterfaceGet(ctx context.Context, id uuid.UUID) (api.VIF, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, mac_address, instance_uuid, network_id FROM virtual_interfaces WHERE id = ?`, id.String())

	var (
		v                                    api.VIF
		idStr, instanceUUIDStr, networkIDStr string
	)

	if err := row.Scan(&idStr, &v.MACAddress, &instanceUUIDStr, &networkIDStr); err != nil {
		if err == sql.ErrNoRows {
			return api.VIF{}, ErrNotFound
		}

		return api.VIF{}, fmt.Errorf("Failed to scan virtual interface: %w", err)
	}

	v.ID = uuid.MustParse(idStr)
	v.InstanceUUID = uuid.MustParse(instanceUUIDStr)
	v.NetworkID = uuid.MustParse(networkIDStr)

	return v, nil
}

// VirtualInterfacesByInstance lists all VIFs for an instance.
func (d *DB) VirtualInterfacesByInstance(ctx context.Context, instanceUUID uuid.UUID) ([]api.VIF, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, mac_address, instance_uuid, network_id FROM virtual_interfaces WHERE instance_uuid = ?`, instanceUUID.String())
	if err != nil {
		return nil, fmt.Errorf("Failed to query virtual interfaces: %w", err)
	}

	defer rows.Close()

	var result []api.VIF
	for rows.Next() {
		var v api.VIF
		var idStr, instanceUUIDStr, networkIDStr string

		if err := rows.Scan(&idStr, &v.MACAddress, &instanceUUIDStr, &networkIDStr); err != nil {
			return nil, fmt.Errorf("Failed to scan virtual interface: %w", err)
		}

		v.ID = uuid.MustParse(idStr)
		v.InstanceUUID = uuid.MustParse(instanceUUIDStr)
		v.NetworkID = uuid.MustParse(networkIDStr)
		result = append(result, v)
	}

	return result, rows.Err()
}

func isUniqueConstraintErr(err error) bool {
	// go-sqlite3 surfaces uniqueness violations as *sqlite3.Error with
	// ExtendedCode sqlite3.ErrConstraintUnique; comparing the message
	// avoids importing the driver package solely for the error type.
	return err != nil && containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: UNIQUE")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}

	return false
}
