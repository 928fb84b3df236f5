package query

import (
	"context"
	"fmt"
)

// SelectStrings executes query against tx and returns the single string
// column of every row.
func SelectStrings(ctx context.Context, tx DBTX, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Failed to execute query: %w", err)
	}

	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("Failed to scan row: %w", err)
		}

		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Row iteration failed: %w", err)
	}

	return values, nil
}

// Count returns the result of a SELECT COUNT(*)-shaped query.
func Count(ctx context.Context, tx DBTX, query string, args ...any) (int, error) {
	row := tx.QueryRowContext(ctx, query, args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return -1, fmt.Errorf("Failed to fetch count: %w", err)
	}

	return count, nil
}
