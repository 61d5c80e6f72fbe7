package datasource

import (
	"context"
	"database/sql"
	"time"
)

// Provider hands out one exclusive connection per engine operation. The
// caller closes the connection, which returns it to the pool.
type Provider interface {
	Acquire(ctx context.Context, database string) (Conn, error)
}

// Conn is a dedicated connection taken from a pool. *sql.Conn satisfies it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// DatabaseConfig describes one configured database. Type selects the
// registered adapter ("postgres", "mssql").
type DatabaseConfig struct {
	Name     string
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// PostgreSQL
	SSLMode string

	// SQL Server
	AuthMethod             string // "sql", "service_principal"
	TenantID               string
	ClientID               string
	ClientSecret           string
	Encrypt                bool
	TrustServerCertificate bool
}

// PoolSettings are applied to every pool the manager opens.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}
