package database

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Qualify builds the fully qualified name for a catalog table on the
// target. SQL Server catalogs live under <database>.dbo; the other dialects
// address tables inside the current database directly.
func Qualify(provider, dbName, table string) string {
	switch provider {
	case "sqlserver", "mssql":
		if dbName != "" {
			return fmt.Sprintf("%s.dbo.%s", dbName, table)
		}
		return "dbo." + table
	}
	return table
}

// Placeholder returns the squirrel placeholder format the provider's driver
// expects.
func Placeholder(provider string) sq.PlaceholderFormat {
	switch provider {
	case "postgres", "postgresql":
		return sq.Dollar
	case "sqlserver", "mssql":
		return sq.AtP
	}
	return sq.Question
}
