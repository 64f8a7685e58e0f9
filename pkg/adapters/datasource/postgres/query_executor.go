package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
)

// QueryExecutor provides PostgreSQL query execution.
type QueryExecutor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

// NewQueryExecutor creates a PostgreSQL query executor with its own pool.
func NewQueryExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (*QueryExecutor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &QueryExecutor{
		pool:   pool,
		logger: logger.Named("datasource.postgres"),
	}, nil
}

// Query runs sqlQuery wrapped in a bounded outer SELECT.
// PostgreSQL accepts a WITH query inside a derived table.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	limit = datasource.EffectiveLimit(limit)
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)

	e.logger.Debug("Executing query",
		zap.String("sql", logging.SanitizeQuery(sqlQuery)),
		zap.Int("limit", limit))

	rows, err := e.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func collectRows(rows pgx.Rows) (*datasource.QueryResult, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// normalizeValue converts pgx-specific values into plain JSON-friendly types.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		return string(val)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	default:
		return v
	}
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to type names.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "BOOLEAN"
	case pgtype.Int2OID:
		return "SMALLINT"
	case pgtype.Int4OID:
		return "INTEGER"
	case pgtype.Int8OID:
		return "BIGINT"
	case pgtype.Float4OID:
		return "REAL"
	case pgtype.Float8OID:
		return "DOUBLE PRECISION"
	case pgtype.NumericOID:
		return "NUMERIC"
	case pgtype.TextOID:
		return "TEXT"
	case pgtype.VarcharOID:
		return "VARCHAR"
	case pgtype.BPCharOID:
		return "CHAR"
	case pgtype.DateOID:
		return "DATE"
	case pgtype.TimestampOID:
		return "TIMESTAMP"
	case pgtype.TimestamptzOID:
		return "TIMESTAMPTZ"
	case pgtype.UUIDOID:
		return "UUID"
	case pgtype.JSONOID:
		return "JSON"
	case pgtype.JSONBOID:
		return "JSONB"
	default:
		return "UNKNOWN"
	}
}

// QuoteIdentifier safely quotes an identifier for PostgreSQL.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Dialect returns "postgres".
func (e *QueryExecutor) Dialect() string {
	return "postgres"
}

// Ping verifies connectivity.
func (e *QueryExecutor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (e *QueryExecutor) Close() error {
	e.pool.Close()
	return nil
}

