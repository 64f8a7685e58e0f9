package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
		},
		QueryExecutorFactory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.QueryExecutor, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, cfg, logger)
		},
	})
}
