package mssql

import (
	"fmt"
	"strings"
)

// quoteName quotes an identifier the way QUOTENAME() does: [name] with ] doubled.
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// mapSQLServerType maps SQL Server type names to standard type names.
// This provides a consistent interface across different database adapters.
func mapSQLServerType(sqlServerType string) string {
	switch strings.ToUpper(sqlServerType) {
	case "INT":
		return "INTEGER"
	case "DECIMAL", "NUMERIC":
		return "NUMERIC"
	case "MONEY", "SMALLMONEY":
		return "MONEY"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "CHAR", "NCHAR":
		return "CHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"
	case "BINARY", "VARBINARY":
		return "BYTEA"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMP WITH TIME ZONE"
	case "BIT":
		return "BOOLEAN"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	default:
		return strings.ToUpper(sqlServerType)
	}
}
