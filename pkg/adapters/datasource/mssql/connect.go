package mssql

import (
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/resource-engine/pkg/config"
)

// dataSource returns the database/sql driver name and DSN for cfg.
func dataSource(cfg *Config) (driver, dsn string, err error) {
	switch cfg.AuthMethod {
	case "sql":
		return "sqlserver", sqlAuthDSN(cfg), nil
	case "service_principal":
		// For Azure AD, use azuresql driver
		return "azuresql", servicePrincipalDSN(cfg), nil
	default:
		return "", "", fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func connectionOptions(cfg *Config) url.Values {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}
	return query
}

// sqlAuthDSN builds a DSN for SQL Server authentication.
func sqlAuthDSN(cfg *Config) string {
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		cfg.Port,
		connectionOptions(cfg).Encode(),
	)
}

// servicePrincipalDSN builds a DSN authenticating with an Azure AD Service
// Principal through the fedauth parameter.
func servicePrincipalDSN(cfg *Config) string {
	query := connectionOptions(cfg)
	query.Add("fedauth", "ActiveDirectoryServicePrincipal")
	query.Add("user id", cfg.ClientID)
	query.Add("password", cfg.ClientSecret)
	query.Add("tenant id", cfg.TenantID)

	return fmt.Sprintf("sqlserver://%s:%d?%s",
		config.ResolveHostForDocker(cfg.Host),
		cfg.Port,
		query.Encode(),
	)
}
