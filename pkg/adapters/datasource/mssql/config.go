package mssql

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
)

// Config contains SQL Server connection options. Only SQL authentication is supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxConns               int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map.
// ssl_mode "disable" turns encryption off; any other value requires it.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              datasource.Port(config, DefaultPort()),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if username, ok := config["username"].(string); ok && username != "" {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok && user != "" {
		cfg.Username = user
	} else {
		return nil, fmt.Errorf("username is required for SQL authentication")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.Encrypt = !strings.EqualFold(sslMode, "disable")
	}

	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	if maxConns, ok := config["max_conns"].(int32); ok && maxConns > 0 {
		cfg.MaxConns = int(maxConns)
	}

	return cfg, nil
}

// ConnectionString builds a sqlserver:// URL with escaped credentials.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)

	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		query.Encode(),
	)
}
