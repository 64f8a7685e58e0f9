// Package datasource defines the read-only query surface the chat workflow
// uses against the target data store, and a registry of dialect adapters.
package datasource

import "context"

// MaxQueryLimit is the hard upper bound on rows returned by Query.
const MaxQueryLimit = 1000

// QueryExecutor runs bounded read-only queries.
// Each implementation owns its connection pool and must be closed when done.
type QueryExecutor interface {
	// Query runs sqlQuery and returns at most limit rows.
	// A limit <= 0 or above MaxQueryLimit is clamped to MaxQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error)

	// QuoteIdentifier quotes a table or column name for this dialect.
	QuoteIdentifier(name string) string

	// Dialect returns the registered adapter type ("postgres", "mssql", "mysql").
	Dialect() string

	// Ping verifies the data store is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult contains the rows returned by a query, in column order.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the result column names in order.
func (r *QueryResult) ColumnNames() []string {
	if r == nil {
		return []string{}
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// EffectiveLimit clamps a requested row limit into (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
