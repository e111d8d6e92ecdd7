package database

import (
	"fmt"
	"net/url"

	"github.com/tradewire/exstream/internal/config"
)

// BuildConnString renders a postgres:// URL for pgx from the archive
// config. Only the password is escaped; the other fields come from our
// own config and are expected to be URL-safe.
func BuildConnString(cfg config.DBConfig) string {
	mode := cfg.SSLMode
	if mode == "" {
		mode = "prefer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, mode)
}
