package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/mcpbus/internal/config"
)

// applicationName tags bus connections in pg_stat_activity.
const applicationName = "mcpbus"

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	q.Set("application_name", applicationName)
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return u.String()
}
