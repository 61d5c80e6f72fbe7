package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the resource engine.
// Configuration comes from a YAML file with environment variable overrides.
// Secrets (database passwords, client secrets) must only come from environment
// variables; the YAML names the variable to read.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Resources  ResourcesConfig  `yaml:"resources"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Engine     EngineConfig     `yaml:"engine"`

	// Databases maps a database name, as referenced by definitions, to its connection.
	Databases map[string]DatabaseConfig `yaml:"databases"`
}

// ResourcesConfig locates resource definitions and trigger bindings.
type ResourcesConfig struct {
	Dir          string `yaml:"dir" env:"SQLRESOURCES_DIR" env-default:"resources"`
	TriggersFile string `yaml:"triggers_file" env:"SQLRESOURCES_TRIGGERS_FILE" env-default:""`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle pools are kept open.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// PoolMaxConns is the maximum number of connections per database pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per database pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// EngineConfig controls execution and document output.
type EngineConfig struct {
	DocumentFormat    string `yaml:"document_format" env:"ENGINE_DOCUMENT_FORMAT" env-default:"xml"`
	CompressDocuments bool   `yaml:"compress_documents" env:"ENGINE_COMPRESS_DOCUMENTS"`
	// RejectInjection makes the SQL builder refuse parameter values flagged as SQL injection.
	RejectInjection bool `yaml:"reject_injection" env:"ENGINE_REJECT_INJECTION"`
	// CascadeScopedDeletes also deletes children when a hierarchical delete names resource identifiers.
	CascadeScopedDeletes bool `yaml:"cascade_scoped_deletes" env:"ENGINE_CASCADE_SCOPED_DELETES"`
}

// DatabaseConfig describes one target database.
type DatabaseConfig struct {
	Type     string `yaml:"type"` // postgres, mssql
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
	Password    string `yaml:"-"`

	AuthMethod             string `yaml:"auth_method"`
	TenantID               string `yaml:"tenant_id"`
	ClientID               string `yaml:"client_id"`
	ClientSecretEnv        string `yaml:"client_secret_env"`
	ClientSecret           string `yaml:"-"`
	Encrypt                bool   `yaml:"encrypt"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate"`
}

var documentFormats = map[string]bool{"xml": true, "json": true, "msgpack": true}

// Load reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// resolveSecrets reads database secrets from the environment variables named in the YAML.
func (c *Config) resolveSecrets() error {
	for name, db := range c.Databases {
		if db.PasswordEnv != "" {
			value, ok := os.LookupEnv(db.PasswordEnv)
			if !ok {
				return fmt.Errorf("database %s: environment variable %s is not set", name, db.PasswordEnv)
			}
			db.Password = value
		}
		if db.ClientSecretEnv != "" {
			value, ok := os.LookupEnv(db.ClientSecretEnv)
			if !ok {
				return fmt.Errorf("database %s: environment variable %s is not set", name, db.ClientSecretEnv)
			}
			db.ClientSecret = value
		}
		c.Databases[name] = db
	}
	return nil
}

func (c *Config) validate() error {
	c.Engine.DocumentFormat = strings.ToLower(c.Engine.DocumentFormat)
	if !documentFormats[c.Engine.DocumentFormat] {
		return fmt.Errorf("engine.document_format must be xml, json or msgpack, got %q", c.Engine.DocumentFormat)
	}
	if c.Resources.Dir == "" {
		return fmt.Errorf("resources.dir is required")
	}
	for name, db := range c.Databases {
		if db.Type == "" {
			return fmt.Errorf("database %s: type is required", name)
		}
	}
	return nil
}

// IsDevelopment reports whether the engine runs in a local or development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev" || c.Env == "development"
}
