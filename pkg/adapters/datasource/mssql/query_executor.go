package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

// NewQueryExecutor opens a SQL Server connection pool and verifies it.
func NewQueryExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (*QueryExecutor, error) {
	db, err := sql.Open("sqlserver", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &QueryExecutor{
		db:     db,
		logger: logger.Named("datasource.mssql"),
	}, nil
}

// Query runs sqlQuery as written and stops reading after limit rows.
// SQL Server rejects a WITH clause inside a derived table, so the
// TOP (n) wrapper other dialects get cannot be applied to CTE queries.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	limit = datasource.EffectiveLimit(limit)

	e.logger.Debug("Executing query",
		zap.String("sql", logging.SanitizeQuery(sqlQuery)),
		zap.Int("limit", limit))

	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, limit, mapSQLServerType)
}

// QuoteIdentifier safely quotes an identifier for SQL Server.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// Dialect returns "mssql".
func (e *QueryExecutor) Dialect() string {
	return "mssql"
}

// Ping verifies connectivity.
func (e *QueryExecutor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sql server: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (e *QueryExecutor) Close() error {
	return e.db.Close()
}
