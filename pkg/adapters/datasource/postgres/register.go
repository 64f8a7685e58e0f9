package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
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
