package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "./data/bank.db", cfg.DBPath)
	assert.Equal(t, "100-M", cfg.RateLimit)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Zero(t, cfg.AuditInterval)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/bank")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT", "off")
	t.Setenv("AUDIT_INTERVAL", "15m")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://ledger@localhost/bank", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RateLimit)
	assert.Equal(t, 15*time.Minute, cfg.AuditInterval)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FACTS_FILE=seed.pl\nLOG_FORMAT=console\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("FACTS_FILE")
		os.Unsetenv("LOG_FORMAT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "seed.pl", cfg.FactsFile)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	valid := Config{DBDriver: DriverSQLite, DBPath: "bank.db", RateLimit: "10-S", ShutdownTimeout: time.Second}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *Config){
		"unknown driver":       func(c *Config) { c.DBDriver = "mongo" },
		"sqlite without db":    func(c *Config) { c.DBPath = "" },
		"postgres without url": func(c *Config) { c.DBDriver = DriverPostgres },
		"bad rate":             func(c *Config) { c.RateLimit = "lots" },
		"no shutdown":          func(c *Config) { c.ShutdownTimeout = 0 },
		"negative audit":       func(c *Config) { c.AuditInterval = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
