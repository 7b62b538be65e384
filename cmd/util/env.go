package util

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// GetEnvWithDefault returns the value of an environment variable or a default value if not set
func GetEnvWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvIntWithDefault returns the value of an environment variable as int or a default value if not set
func GetEnvIntWithDefault(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// ApplyConnectionEnv fills connection fields from PG* environment variables
// for every flag the user did not set explicitly.
func ApplyConnectionEnv(cmd *cobra.Command, cfg *ConnectionConfig) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if v := GetEnvWithDefault("PGHOST", ""); v != "" && !changed("host") {
		cfg.Host = v
	}
	if v := GetEnvIntWithDefault("PGPORT", 0); v != 0 && !changed("port") {
		cfg.Port = v
	}
	if v := GetEnvWithDefault("PGDATABASE", ""); v != "" && !changed("db") {
		cfg.Database = v
	}
	if v := GetEnvWithDefault("PGUSER", ""); v != "" && !changed("user") {
		cfg.User = v
	}
	if v := GetEnvWithDefault("PGPASSWORD", ""); v != "" && !changed("password") {
		cfg.Password = v
	}
	if v := GetEnvWithDefault("PGSSLMODE", ""); v != "" && !changed("sslmode") {
		cfg.SSLMode = v
	}
	if v := GetEnvWithDefault("PGAPPNAME", ""); v != "" && !changed("application-name") {
		cfg.ApplicationName = v
	}
}

// PreRunEWithConnection returns a PreRunE that applies environment fallbacks
// and validates the connection unless a full URL was given.
func PreRunEWithConnection(cfg *ConnectionConfig) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ApplyConnectionEnv(cmd, cfg)
		if cfg.URL != "" {
			return nil
		}
		if cfg.Database == "" {
			return fmt.Errorf("database name is required (use --db flag or PGDATABASE environment variable)")
		}
		if cfg.User == "" {
			return fmt.Errorf("database user is required (use --user flag or PGUSER environment variable)")
		}
		return nil
	}
}
