package datasource

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector.
// Connections handed to database/sql come from the pgx pool.
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// NewPostgresPoolWrapper creates a new PostgreSQL pool wrapper
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

// Ping verifies the PostgreSQL connection is alive
func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close closes the database/sql handle and then the pgx pool
func (w *PostgresPoolWrapper) Close() error {
	err := w.db.Close()
	w.pool.Close()
	return err
}

// GetType returns the database type
func (w *PostgresPoolWrapper) GetType() string {
	return "postgres"
}

// DB returns the database/sql view of the pool
func (w *PostgresPoolWrapper) DB() *sql.DB {
	return w.db
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLDBWrapper wraps a *sql.DB opened through a database/sql driver
// (SQL Server) to implement PoolConnector.
type SQLDBWrapper struct {
	db     *sql.DB
	dbType string
}

// NewSQLDBWrapper creates a wrapper reporting dbType
func NewSQLDBWrapper(dbType string, db *sql.DB) *SQLDBWrapper {
	return &SQLDBWrapper{db: db, dbType: dbType}
}

// Ping verifies the connection is alive
func (w *SQLDBWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// Close closes all connections in the pool
func (w *SQLDBWrapper) Close() error {
	return w.db.Close()
}

// GetType returns the database type
func (w *SQLDBWrapper) GetType() string {
	return w.dbType
}

// DB returns the underlying *sql.DB
func (w *SQLDBWrapper) DB() *sql.DB {
	return w.db
}
