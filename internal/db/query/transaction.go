// Package query provides small helpers over database/sql used by the
// db package's pool-allocation primitives: a transaction wrapper with
// commit/rollback handling, and scan helpers for common shapes.
package query

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting helpers be called
// either against a plain handle or an already-open transaction.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Transaction runs f inside a new transaction on db, committing if f
// returns nil and rolling back otherwise. The transaction uses
// sql.LevelSerializable, per spec.md §5's requirement that pool-allocation
// primitives forbid lost updates.
func Transaction(ctx context.Context, db *sql.DB, f func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("Failed to begin transaction: %w", err)
	}

	err = f(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Failed to commit transaction: %w", err)
	}

	return nil
}
