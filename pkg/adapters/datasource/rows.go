package datasource

import (
	"database/sql"
	"fmt"
)

// ScanRows reads at most limit rows from a database/sql result set.
// Byte slices are returned as strings; drivers using the text protocol return
// every non-NULL value that way, including numbers.
// typeName maps driver type names to the names reported in ColumnInfo.
func ScanRows(rows *sql.Rows, limit int, typeName func(string) string) (*QueryResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		dbType := columnTypes[i].DatabaseTypeName()
		if typeName != nil {
			dbType = typeName(dbType)
		}
		columns[i] = ColumnInfo{Name: name, Type: dbType}
	}

	resultRows := make([]map[string]any, 0)
	for len(resultRows) < limit && rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
				continue
			}
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Port reads a port from a config map, accepting JSON (float64) and Go ints.
func Port(config map[string]any, fallback int) int {
	switch v := config["port"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
