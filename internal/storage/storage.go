// Package storage contains the sqlite database used for persisting cached data.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("object not found")

const schema = `
	CREATE TABLE IF NOT EXISTS cache_keys (
		key TEXT PRIMARY KEY NOT NULL,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS cache_keys_expires_at_idx ON cache_keys (expires_at);
`

// Storage provides access to the database.
type Storage struct {
	db *sql.DB
}

// New returns a new storage object for db.
func New(db *sql.DB) *Storage {
	st := &Storage{db: db}
	return st
}

// InitDB opens the database at dataSourceName and creates the schema if needed.
func InitDB(dataSourceName string) (*sql.DB, error) {
	v := url.Values{}
	v.Add("_fk", "on")
	v.Add("_journal_mode", "WAL")
	v.Add("_synchronous", "normal")
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	dsn := dataSourceName + sep + v.Encode()
	slog.Debug("Connecting to sqlite", "dsn", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Connected to database")
	return db, nil
}

// ApplySchema creates all tables which do not yet exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
