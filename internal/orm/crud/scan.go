package crud

import (
	"context"
	"database/sql"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// queryRows runs the query and scans every row into a map keyed by column
func queryRows(ctx context.Context, q querier, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// queryOne runs the query and returns its first row, or nil if none matched
func queryOne(ctx context.Context, q querier, query string, args ...interface{}) (map[string]interface{}, error) {
	records, err := queryRows(ctx, q, query, args...)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// scanRows scans multiple rows into a slice of maps
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
