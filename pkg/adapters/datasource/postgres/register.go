// Package postgres registers the PostgreSQL adapter. Pools are pgx pools
// exposed to the engine through database/sql.
package postgres

import (
	"context"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Aliases: []string{"postgresql"},
		Open:    Open,
	})
}

// Open creates the pgx pool for a configured database.
func Open(ctx context.Context, db datasource.DatabaseConfig, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	cfg, err := FromDatabaseConfig(db)
	if err != nil {
		return nil, err
	}
	return datasource.CreatePostgresPool(ctx, buildConnectionString(cfg), settings)
}
