// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	Port     string
	DBDriver string
	// DBPath is the SQLite database file (DB_DRIVER=sqlite).
	DBPath string
	// DatabaseURL is the PostgreSQL connection string (DB_DRIVER=postgres).
	DatabaseURL string

	LogLevel  string
	LogFormat string

	// EligibilityPolicyFile is a YAML or JSON policy; empty denies all credit.
	EligibilityPolicyFile string
	// FactsFile seeds an empty store on startup.
	FactsFile string

	// RateLimit is a limiter rate such as "100-M"; "off" disables it.
	RateLimit   string
	CORSOrigins []string

	ShutdownTimeout time.Duration
	// AuditInterval schedules a periodic balance cache audit; 0 disables it.
	AuditInterval time.Duration
}

// Load reads configuration from environment variables, after loading any
// of envFiles that exist (default ".env"). Real environment variables win
// over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing files are fine; godotenv never overrides set variables.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./data/bank.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ELIGIBILITY_POLICY_FILE", "")
	v.SetDefault("FACTS_FILE", "")
	v.SetDefault("RATE_LIMIT", "100-M")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("AUDIT_INTERVAL", "0s")
	v.AutomaticEnv()

	cfg := &Config{
		Port:                  v.GetString("PORT"),
		DBDriver:              strings.ToLower(v.GetString("DB_DRIVER")),
		DBPath:                v.GetString("DB_PATH"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		EligibilityPolicyFile: v.GetString("ELIGIBILITY_POLICY_FILE"),
		FactsFile:             v.GetString("FACTS_FILE"),
		RateLimit:             strings.TrimSpace(v.GetString("RATE_LIMIT")),
		CORSOrigins:           splitList(v.GetString("CORS_ORIGINS")),
		ShutdownTimeout:       v.GetDuration("SHUTDOWN_TIMEOUT"),
		AuditInterval:         v.GetDuration("AUDIT_INTERVAL"),
	}

	if strings.EqualFold(cfg.RateLimit, "off") {
		cfg.RateLimit = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required when DB_DRIVER=%s", DriverSQLite)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (use %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
			return fmt.Errorf("invalid RATE_LIMIT %q: %w", c.RateLimit, err)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("AUDIT_INTERVAL must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
