// Package database persists learned selection probabilities and archives
// performance events in SQLite or PostgreSQL.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lawnchairsociety/bossmind/internal/logger"
)

// Database wraps the connection and provides persistence operations.
type Database struct {
	db      *sqlx.DB
	dialect Dialect
	qb      *QueryBuilder
	runID   uuid.UUID
	now     func() time.Time
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens the configured database, runs migrations and
// registers a new run for archived performance events.
func OpenWithConfig(cfg Config) (*Database, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, ok := dialect.(*PostgresDialect); ok {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	} else {
		// PRAGMAs are per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	d := &Database{
		db:      db,
		dialect: dialect,
		qb:      NewQueryBuilder(dialect),
		runID:   uuid.New(),
		now:     time.Now,
	}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if cfg.SkipRun {
		d.runID = uuid.Nil
		logger.Info("Database opened", "driver", dialect.DriverName())
		return d, nil
	}
	if err := d.startRun(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	logger.Info("Database opened", "driver", dialect.DriverName(), "run", d.runID.String())
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// migrate creates the database schema if it doesn't exist.
func (d *Database) migrate() error {
	migrations := []string{
		// Learned selection probabilities, one row per personality
		`CREATE TABLE IF NOT EXISTS personality_probabilities (
			name TEXT PRIMARY KEY,
			probability DOUBLE PRECISION NOT NULL,
			schema_version INTEGER NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)`,

		// One row per process that archived events
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL
		)`,

		// Archived performance log entries
		`CREATE TABLE IF NOT EXISTS performance_events (
			id {{pk}},
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			personality TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,

		// Indexes for common queries
		`CREATE INDEX IF NOT EXISTS idx_performance_events_run_id ON performance_events(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_events_personality ON performance_events(personality)`,
	}

	for _, m := range migrations {
		stmt := d.qb.Schema(m)
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

func (d *Database) startRun() error {
	_, err := d.db.Exec(d.qb.Build(`INSERT INTO runs (id, started_at) VALUES (?, ?)`),
		d.runID.String(), d.now().UTC())
	return err
}

// RunID identifies this process's archived events. It is uuid.Nil when the
// database was opened with SkipRun.
func (d *Database) RunID() uuid.UUID {
	return d.runID
}

// Dialect returns the active dialect.
func (d *Database) Dialect() Dialect {
	return d.dialect
}
