// Package db is the storage layer backing the Address Pool Engine,
// Network Manager and Floating IP Engine: SQLite tables for networks,
// fixed IPs, VIFs and floating IPs, with the pool-allocation primitives of
// spec.md §5 implemented as single transactions so that concurrent
// allocators cannot double-allocate (invariant 5 of spec.md §8).
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite handle and exposes the pool-allocation primitives.
type DB struct {
	sql *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS networks (
	id TEXT PRIMARY KEY,
	numeric_id INTEGER NOT NULL,
	label TEXT NOT NULL,
	cidr TEXT,
	cidr_v6 TEXT,
	gateway TEXT,
	gateway_v6 TEXT,
	bridge TEXT NOT NULL,
	bridge_interface TEXT,
	dns TEXT,
	vlan INTEGER,
	vpn_public_address TEXT,
	vpn_private_address TEXT,
	vpn_public_port INTEGER,
	multi_host INTEGER NOT NULL DEFAULT 0,
	host TEXT,
	project_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fixed_ips (
	address TEXT NOT NULL,
	network_id TEXT NOT NULL REFERENCES networks(id),
	reserved INTEGER NOT NULL DEFAULT 0,
	allocated INTEGER NOT NULL DEFAULT 0,
	leased INTEGER NOT NULL DEFAULT 0,
	instance_uuid TEXT,
	vif_id TEXT,
	host TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (network_id, address)
);

CREATE INDEX IF NOT EXISTS idx_fixed_ips_instance ON fixed_ips(instance_uuid);
CREATE INDEX IF NOT EXISTS idx_fixed_ips_network_alloc ON fixed_ips(network_id, allocated, reserved);
CREATE INDEX IF NOT EXISTS idx_fixed_ips_network_host ON fixed_ips(network_id, host);

CREATE TABLE IF NOT EXISTS virtual_interfaces (
	id TEXT PRIMARY KEY,
	mac_address TEXT NOT NULL UNIQUE,
	instance_uuid TEXT NOT NULL,
	network_id TEXT NOT NULL REFERENCES networks(id)
);

CREATE TABLE IF NOT EXISTS floating_ips (
	address TEXT PRIMARY KEY,
	fixed_ip_address TEXT,
	fixed_ip_network_id TEXT,
	project_id TEXT,
	pool TEXT NOT NULL,
	auto_assigned INTEGER NOT NULL DEFAULT 0,
	host TEXT,
	interface TEXT
);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database: %w", err)
	}

	if path == ":memory:" {
		// A single shared connection keeps the in-memory database alive
		// across the pool; sqlite3's :memory: databases are otherwise
		// per-connection.
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := sqlDB.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("Failed to apply schema: %w", err)
	}

	return &DB{sql: sqlDB}, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.sql.Close()
}
