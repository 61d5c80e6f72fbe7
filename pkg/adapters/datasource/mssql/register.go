// Package mssql registers the Microsoft SQL Server adapter, supporting SQL
// authentication and Azure AD service principals.
package mssql

import (
	"context"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2017+ and Azure SQL Database",
		},
		Aliases: []string{"sqlserver", "azuresql"},
		Open:    Open,
	})
}

// Open creates the database/sql pool for a configured database. The driver
// connects lazily, so configuration errors surface here and network errors on
// first use.
func Open(_ context.Context, db datasource.DatabaseConfig, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	cfg, err := FromDatabaseConfig(db)
	if err != nil {
		return nil, err
	}
	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}
	return datasource.CreateSQLPool("mssql", driver, dsn, settings)
}
