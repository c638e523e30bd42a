package database

import (
	"fmt"
	"net/url"

	"github.com/avelis/boardsync/internal/config"
)

// BuildConnString builds a pgx connection string from config. SSLMode is
// guaranteed non-empty by config defaulting and validation; the password
// is query-escaped to survive special characters.
func BuildConnString(cfg config.DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}
