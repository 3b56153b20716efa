package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// DumpTableNames lists the tables included in a full database dump.
var DumpTableNames = []string{"rooms", "events"}

// GetTableData returns all rows from a table as maps, along with its column order.
func (db *DB) GetTableData(ctx context.Context, tableName string) (data []map[string]any, columns []string, err error) {
	// Table names cannot be bound as parameters, so only known tables are accepted.
	if !slices.Contains(DumpTableNames, tableName) {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var cid, notNull, pk int
		var name, typeName string
		var dflt sql.NullString
		if err = rows.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, nil, err
		}
		columns = append(columns, name)
	}
	rows.Close()

	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("table %s has no columns", tableName)
	}

	dataRows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY 1", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer dataRows.Close()

	for dataRows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err = dataRows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		data = append(data, row)
	}

	return data, columns, dataRows.Err()
}
