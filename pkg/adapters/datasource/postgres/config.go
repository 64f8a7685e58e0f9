package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	MaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    datasource.Port(config, DefaultPort()),
		SSLMode: DefaultSSLMode(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	if maxConns, ok := config["max_conns"].(int32); ok && maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, # or ?
// do not break URL parsing.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
		sslMode,
	)
}
