package mysql

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
)

// Config contains MySQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable" or anything else for TLS-when-available
	MaxConns int
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port: datasource.Port(config, DefaultPort()),
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

	if sslMode, ok := config["ssl_mode"].(string); ok {
		cfg.SSLMode = sslMode
	}

	if maxConns, ok := config["max_conns"].(int32); ok && maxConns > 0 {
		cfg.MaxConns = int(maxConns)
	}

	return cfg, nil
}

// DriverConfig builds the driver configuration. Times are parsed into time.Time
// and the connection uses utf8mb4 so non-ASCII values round-trip.
func (c *Config) DriverConfig() *driver.Config {
	dc := driver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Timeout = 10 * time.Second
	dc.Params = map[string]string{"charset": "utf8mb4"}
	if strings.EqualFold(c.SSLMode, "disable") {
		dc.TLSConfig = "false"
	} else {
		dc.TLSConfig = "preferred"
	}
	return dc
}

// DSN formats the driver data source name.
func (c *Config) DSN() string {
	return c.DriverConfig().FormatDSN()
}
