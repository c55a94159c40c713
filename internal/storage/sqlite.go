// Package storage defines the persistence interfaces and the SQLite backend.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL database connection with application-specific methods.
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection to the SQLite file at the given path.
// It creates the directory structure if it doesn't exist.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// - _foreign_keys=on: Enable foreign key constraints
	// - _journal_mode=WAL: concurrent readers while a sync pass writes
	// - _busy_timeout=5000: Wait up to 5 seconds if database is locked
	// - _synchronous=NORMAL: Balance between safety and performance
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return &DB{DB: db}, nil
}

// NewStore returns the repositories backed by db.
func NewStore(db *DB) *Store {
	return &Store{
		Bookings:     NewBookingRepository(db),
		BlockedDates: NewBlockedDateRepository(db),
		Settings:     NewSettingsRepository(db),
		Health:       db,
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
