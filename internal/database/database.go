// Package database opens the single target connection an importer run owns
// exclusively. Providers map to registered database/sql drivers; the legacy
// catalog tables on the target are shared mutable state, so no pooling or
// concurrent use of the returned connection is supported.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// DriverName maps a provider name to the registered database/sql driver.
func DriverName(provider string) (string, error) {
	switch provider {
	case "sqlserver", "mssql":
		return "sqlserver", nil
	case "postgres", "postgresql":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database provider: %s (supported: sqlserver, postgres, mysql, sqlite)", provider)
}

// Open connects to the target and reserves one connection for the run.
// The returned cleanup releases the connection and closes the pool; callers
// must invoke it on every exit path.
func Open(ctx context.Context, provider, connStr string) (*sql.Conn, func(), error) {
	driver, err := DriverName(provider)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// One exclusive connection for the whole run.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanup := func() {
		_ = conn.Close()
		_ = db.Close()
	}
	return conn, cleanup, nil
}
