// Package db stores prediction history in SQLite.
package db

import (
	"database/sql"
	"fmt"

	// Pure Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// DefaultBusyTimeoutMS is how long a writer waits on a locked database.
const DefaultBusyTimeoutMS = 5000

// openSQLite opens path with WAL journaling and a single connection.
// SQLite serializes writers anyway, and one connection keeps per-connection
// pragmas in effect.
func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", DefaultBusyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		conn.Close()
		return nil, fmt.Errorf("verify journal mode: %w", err)
	}
	if mode != "wal" {
		conn.Close()
		return nil, fmt.Errorf("WAL mode not enabled, got %q", mode)
	}
	return conn, nil
}
