// Package database provides SQLite storage for scraped releases.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	queries
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an
	// in-memory database from splitting across connections.
	conn.SetMaxOpenConns(1)
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{queries{conn: conn}}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	// shoe_details.id references releases(id) but foreign keys stay off:
	// the retention trim removes releases without touching their details.
	schema := `
	CREATE TABLE IF NOT EXISTS releases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		product_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		ordinal INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_releases_timestamp ON releases(timestamp DESC);
	CREATE TABLE IF NOT EXISTS shoe_details (
		id TEXT PRIMARY KEY REFERENCES releases(id),
		name TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		image_urls TEXT NOT NULL DEFAULT '[]',
		product_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		colorway TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		sizes TEXT NOT NULL DEFAULT '[]',
		is_launched BOOLEAN NOT NULL DEFAULT 0,
		stockx_url TEXT NOT NULL DEFAULT '',
		stockx_price REAL NOT NULL DEFAULT 0,
		stockx_last_sale REAL NOT NULL DEFAULT 0,
		stockx_sales INTEGER NOT NULL DEFAULT 0,
		stockx_name TEXT NOT NULL DEFAULT '',
		stockx_sku TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		last_updated DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_shoe_details_last_updated ON shoe_details(last_updated);
	`
	_, err := db.conn.Exec(schema)
	return err
}
