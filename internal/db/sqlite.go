// Package db stores the bot's event journal in SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Database wraps a SQLite database connection with serialized writes.
type Database struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewDatabase opens or creates a SQLite database at the given path.
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		log.Warn().Err(err).Msg("failed to set busy timeout")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("database opened")

	return &Database{
		db:   db,
		path: dbPath,
	}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Exec executes a statement without returning rows.
func (d *Database) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (d *Database) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row.
func (d *Database) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Transaction executes fn within a database transaction.
func (d *Database) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Migrate applies the statements in migrations that have not run yet. The
// applied count is tracked in schema_version.
func (d *Database) Migrate(ctx context.Context, migrations []string) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return fmt.Errorf("failed to create schema_version: %w", err)
		}

		var version int
		err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		for i := version; i < len(migrations); i++ {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
		if version < len(migrations) {
			if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, len(migrations)); err != nil {
				return err
			}
			log.Debug().Int("from", version).Int("to", len(migrations)).Msg("database migrated")
		}
		return nil
	})
}
