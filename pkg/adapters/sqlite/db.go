// Package sqlite stores flows and call state in an embedded SQLite database.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"

	"github.com/ringwire/callflow/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is a migrated database handle shared by Repository and Store.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			d.logger.Warn("failed to set pragma", "pragma", pragma, "err", err)
		}
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	d.sql = db
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.sql.Close()
}
