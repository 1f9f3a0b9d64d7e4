package database

import (
	"net/url"
	"strconv"

	"github.com/rickgao/mist-signaling/internal/config"
)

// applicationName tags relay sessions in pg_stat_activity.
const applicationName = "mist-signaling"

// BuildConnString builds a PostgreSQL connection URL from config.
// An empty ssl_mode falls back to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("application_name", applicationName)
	q.Set("sslmode", sslMode)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
