package query_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/db/query"
)

// Any error happening when beginning the transaction is propagated.
func TestTransaction_BeginError(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Close())

	err := query.Transaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to begin transaction")
}

// Any error happening inside the transaction function causes a rollback.
func TestTransaction_FunctionError(t *testing.T) {
	db := newDB(t)

	err := query.Transaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE test (id INTEGER)")
		assert.NoError(t, err)
		return fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")

	tables, err := query.SelectStrings(context.Background(), db, "SELECT name FROM sqlite_master WHERE type = 'table'")
	assert.NoError(t, err)
	assert.NotContains(t, tables, "test")
}

func TestTransaction_Commit(t *testing.T) {
	db := newDB(t)

	err := query.Transaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE test (id INTEGER)")
		return err
	})
	assert.NoError(t, err)

	tables, err := query.SelectStrings(context.Background(), db, "SELECT name FROM sqlite_master WHERE type = 'table'")
	assert.NoError(t, err)
	assert.Contains(t, tables, "test")
}

func newDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	return db
}
