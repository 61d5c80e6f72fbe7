package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "SQLRESOURCES_DIR", "SQLRESOURCES_TRIGGERS_FILE",
		"DATASOURCE_CONNECTION_TTL_MINUTES", "DATASOURCE_POOL_MAX_CONNS", "DATASOURCE_POOL_MIN_CONNS",
		"ENGINE_DOCUMENT_FORMAT", "ENGINE_COMPRESS_DOCUMENTS", "ENGINE_REJECT_INJECTION",
		"ENGINE_CASCADE_SCOPED_DELETES",
	} {
		if value, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, value) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "env: test\n")

	cfg, err := Load(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "resources", cfg.Resources.Dir)
	assert.Empty(t, cfg.Resources.TriggersFile)
	assert.Equal(t, 5, cfg.Datasource.ConnectionTTLMinutes)
	assert.Equal(t, int32(10), cfg.Datasource.PoolMaxConns)
	assert.Equal(t, int32(1), cfg.Datasource.PoolMinConns)
	assert.Equal(t, "xml", cfg.Engine.DocumentFormat)
	assert.False(t, cfg.Engine.CompressDocuments)
	assert.False(t, cfg.Engine.CascadeScopedDeletes)
	assert.Empty(t, cfg.Databases)
}

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("SAKILA_PASSWORD", "s3cret")
	path := writeConfig(t, `
env: production
log_level: debug
resources:
  dir: /srv/resources
  triggers_file: /srv/triggers.yaml
datasource:
  connection_ttl_minutes: 15
  pool_max_conns: 20
engine:
  document_format: JSON
  compress_documents: true
  reject_injection: true
  cascade_scoped_deletes: true
databases:
  sakila:
    type: postgres
    host: db.example.com
    port: 5433
    user: sakila
    password_env: SAKILA_PASSWORD
    database: sakila
    ssl_mode: disable
  reporting:
    type: mssql
    host: sql.example.com
    user: report
    database: reports
    encrypt: true
`)

	cfg, err := Load(path, "v1")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/resources", cfg.Resources.Dir)
	assert.Equal(t, "/srv/triggers.yaml", cfg.Resources.TriggersFile)
	assert.Equal(t, 15, cfg.Datasource.ConnectionTTLMinutes)
	assert.Equal(t, int32(20), cfg.Datasource.PoolMaxConns)
	assert.Equal(t, "json", cfg.Engine.DocumentFormat)
	assert.True(t, cfg.Engine.CompressDocuments)
	assert.True(t, cfg.Engine.RejectInjection)
	assert.True(t, cfg.Engine.CascadeScopedDeletes)

	require.Len(t, cfg.Databases, 2)
	sakila := cfg.Databases["sakila"]
	assert.Equal(t, "postgres", sakila.Type)
	assert.Equal(t, 5433, sakila.Port)
	assert.Equal(t, "s3cret", sakila.Password)
	assert.Equal(t, "disable", sakila.SSLMode)
	assert.True(t, cfg.Databases["reporting"].Encrypt)
	assert.Empty(t, cfg.Databases["reporting"].Password)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
env: test
resources:
  dir: from-yaml
engine:
  document_format: xml
`)
	t.Setenv("SQLRESOURCES_DIR", "from-env")
	t.Setenv("ENGINE_DOCUMENT_FORMAT", "msgpack")
	t.Setenv("DATASOURCE_POOL_MAX_CONNS", "3")

	cfg, err := Load(path, "v1")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Resources.Dir)
	assert.Equal(t, "msgpack", cfg.Engine.DocumentFormat)
	assert.Equal(t, int32(3), cfg.Datasource.PoolMaxConns)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestLoad_MissingPasswordEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
databases:
  sakila:
    type: postgres
    host: localhost
    password_env: SQLRESOURCES_TEST_UNSET_PASSWORD
`)
	_, err := Load(path, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLRESOURCES_TEST_UNSET_PASSWORD is not set")
}

func TestLoad_InvalidDocumentFormat(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "engine:\n  document_format: csv\n")

	_, err := Load(path, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document_format")
}

func TestLoad_DatabaseWithoutType(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "databases:\n  sakila:\n    host: localhost\n")

	_, err := Load(path, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database sakila: type is required")
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, (&Config{Env: "local"}).IsDevelopment())
	assert.True(t, (&Config{Env: "dev"}).IsDevelopment())
	assert.False(t, (&Config{Env: "production"}).IsDevelopment())
}
