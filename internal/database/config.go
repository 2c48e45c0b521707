package database

import (
	"fmt"
	"time"

	"github.com/lawnchairsociety/bossmind/internal/config"
)

// Config holds database connection configuration.
type Config struct {
	// Driver specifies which database to use: "sqlite" or "postgres"
	Driver string

	// SQLite configuration
	SQLitePath string

	// PostgreSQL configuration
	Postgres PostgresConfig

	// SkipRun opens without registering a run, for tools that only copy data.
	SkipRun bool
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq key/value connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// DefaultConfig returns a Config with sensible defaults for SQLite.
func DefaultConfig(sqlitePath string) Config {
	return Config{
		Driver:     "sqlite",
		SQLitePath: sqlitePath,
	}
}

// DefaultPostgresConfig returns PostgresConfig with recommended pool settings.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConfigFromPersistence maps the persistence section of the boss config.
func ConfigFromPersistence(p config.PersistenceConfig) Config {
	cfg := DefaultConfig(p.SQLitePath)
	cfg.Driver = p.Driver

	pg := DefaultPostgresConfig()
	if p.Postgres.Host != "" {
		pg.Host = p.Postgres.Host
	}
	if p.Postgres.Port > 0 {
		pg.Port = p.Postgres.Port
	}
	if p.Postgres.SSLMode != "" {
		pg.SSLMode = p.Postgres.SSLMode
	}
	if p.Postgres.MaxOpenConns > 0 {
		pg.MaxOpenConns = p.Postgres.MaxOpenConns
	}
	if p.Postgres.MaxIdleConns > 0 {
		pg.MaxIdleConns = p.Postgres.MaxIdleConns
	}
	if p.Postgres.ConnMaxLifetimeMinutes > 0 {
		pg.ConnMaxLifetime = p.Postgres.ConnMaxLifetime()
	}
	pg.User = p.Postgres.User
	pg.Password = p.Postgres.Password
	pg.Database = p.Postgres.Database
	cfg.Postgres = pg
	return cfg
}
