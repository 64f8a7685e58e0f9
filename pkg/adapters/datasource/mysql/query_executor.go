package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
)

// QueryExecutor provides MySQL query execution.
type QueryExecutor struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

// NewQueryExecutor opens a MySQL connection pool and verifies it.
func NewQueryExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (*QueryExecutor, error) {
	connector, err := driver.NewConnector(cfg.DriverConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &QueryExecutor{
		db:     db,
		logger: logger.Named("datasource.mysql"),
	}, nil
}

// Query runs sqlQuery wrapped in a bounded outer SELECT.
// MySQL 8 accepts a WITH query inside a derived table.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	limit = datasource.EffectiveLimit(limit)
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)

	e.logger.Debug("Executing query",
		zap.String("sql", logging.SanitizeQuery(sqlQuery)),
		zap.Int("limit", limit))

	rows, err := e.db.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, limit, strings.ToUpper)
}

// QuoteIdentifier quotes an identifier with backticks, doubling embedded backticks.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Dialect returns "mysql".
func (e *QueryExecutor) Dialect() string {
	return "mysql"
}

// Ping verifies connectivity.
func (e *QueryExecutor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (e *QueryExecutor) Close() error {
	return e.db.Close()
}
