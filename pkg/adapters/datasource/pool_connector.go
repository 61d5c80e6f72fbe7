package datasource

import (
	"context"
	"database/sql"
)

// PoolConnector abstracts a connection pool across database types
// (PostgreSQL, MSSQL), exposing it through database/sql.
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string

	// DB returns the pool as a *sql.DB
	DB() *sql.DB
}
