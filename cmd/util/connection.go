package util

import (
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// ConnectionConfig holds database connection parameters
type ConnectionConfig struct {
	// URL, when set, is used as is and the other fields are ignored.
	URL             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	ApplicationName string
}

// RegisterConnectionFlags adds the connection flags to cmd.
func RegisterConnectionFlags(cmd *cobra.Command, cfg *ConnectionConfig) {
	cmd.Flags().StringVar(&cfg.URL, "url", "", "Database URL (postgres://...); overrides the other connection flags")
	cmd.Flags().StringVar(&cfg.Host, "host", "localhost", "Database server host (env: PGHOST)")
	cmd.Flags().IntVar(&cfg.Port, "port", 5432, "Database server port (env: PGPORT)")
	cmd.Flags().StringVar(&cfg.Database, "db", "", "Database name (env: PGDATABASE)")
	cmd.Flags().StringVar(&cfg.User, "user", "", "Database user name (env: PGUSER)")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "Database password (env: PGPASSWORD)")
	cmd.Flags().StringVar(&cfg.SSLMode, "sslmode", "", "SSL mode (env: PGSSLMODE)")
	cmd.Flags().StringVar(&cfg.ApplicationName, "application-name", "pgcompose", "Application name reported to the server (env: PGAPPNAME)")
}

// BuildURL returns the postgres:// URL for the configuration. The URL form
// lets a database travel through the same source spec as files and text.
func BuildURL(cfg *ConnectionConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
