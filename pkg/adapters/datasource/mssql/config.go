package mssql

import (
	"fmt"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use
	// Options: "sql", "service_principal"
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromDatabaseConfig extracts the SQL Server options of a configured database.
// The auth method is detected from the credentials when not set.
func FromDatabaseConfig(db datasource.DatabaseConfig) (*Config, error) {
	cfg := &Config{
		Host:                   db.Host,
		Port:                   db.Port,
		Database:               db.Database,
		AuthMethod:             db.AuthMethod,
		Username:               db.User,
		Password:               db.Password,
		TenantID:               db.TenantID,
		ClientID:               db.ClientID,
		ClientSecret:           db.ClientSecret,
		Encrypt:                db.Encrypt,
		TrustServerCertificate: db.TrustServerCertificate,
		ConnectionTimeout:      DefaultConnectionTimeout(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	if cfg.AuthMethod == "" {
		switch {
		case cfg.ClientID != "":
			cfg.AuthMethod = "service_principal"
		case cfg.Username != "":
			cfg.AuthMethod = "sql"
		default:
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case "sql":
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case "service_principal":
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}

	return nil
}
