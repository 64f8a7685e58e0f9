package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "[student]", quoteName("student"))
	assert.Equal(t, "[odd]]name]", quoteName("odd]name"))
}

func TestMapSQLServerType(t *testing.T) {
	tests := map[string]string{
		"int":              "INTEGER",
		"NVARCHAR":         "VARCHAR",
		"decimal":          "NUMERIC",
		"datetime2":        "TIMESTAMP",
		"bit":              "BOOLEAN",
		"uniqueidentifier": "UUID",
		"bigint":           "BIGINT",
	}
	for in, want := range tests {
		assert.Equal(t, want, mapSQLServerType(in), in)
	}
}
