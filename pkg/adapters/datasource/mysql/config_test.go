package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":      "127.0.0.1",
		"port":      3306,
		"user":      "root",
		"password":  "pw",
		"database":  "edu_admin",
		"ssl_mode":  "disable",
		"max_conns": int32(4),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConns)

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "root:pw@tcp(127.0.0.1:3306)/edu_admin")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=false")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestFromMap_MissingFields(t *testing.T) {
	_, err := FromMap(map[string]any{"user": "u", "database": "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")

	_, err = FromMap(map[string]any{"host": "h", "user": "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is required")
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`student`", quoteIdentifier("student"))
	assert.Equal(t, "`we``ird`", quoteIdentifier("we`ird"))
}
