package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database is closed")

// Database owns the history connection. Open applies pending migrations
// before handing out the connection.
//
//	database, err := db.Open(cfg.DBPath)
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	repo := db.NewRepository(database)
type Database struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates the parent directory, migrates the schema and connects.
func Open(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	if err := MigrateUp(path); err != nil {
		return nil, err
	}
	conn, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	return &Database{conn: conn, path: path}, nil
}

// Path returns the database file.
func (d *Database) Path() string {
	return d.path
}

// Ping checks the connection for health reporting.
func (d *Database) Ping(ctx context.Context) error {
	return d.with(func(conn *sql.DB) error {
		return conn.PingContext(ctx)
	})
}

// Close closes the connection. It is safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// with runs fn while holding the connection open.
func (d *Database) with(fn func(conn *sql.DB) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return ErrClosed
	}
	return fn(d.conn)
}
