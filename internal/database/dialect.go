package database

import "github.com/jmoiron/sqlx"

// Dialect abstracts database-specific SQL differences between SQLite and PostgreSQL.
type Dialect interface {
	// DriverName returns the driver name for sqlx.Open().
	// SQLite: "sqlite", PostgreSQL: "postgres"
	DriverName() string

	// BindType returns the sqlx bind type used to rebind ? placeholders.
	// SQLite: sqlx.QUESTION, PostgreSQL: sqlx.DOLLAR
	BindType() int

	// InitStatements returns statements run once after connecting.
	InitStatements() []string

	// AutoIncrementKey returns the column definition of a surrogate key.
	AutoIncrementKey() string

	// IsDuplicateKeyError returns true if the error is a unique constraint violation.
	IsDuplicateKeyError(err error) bool
}

// DialectType identifies the database dialect.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect creates a new Dialect for the given type.
func NewDialect(dialectType DialectType) Dialect {
	switch dialectType {
	case DialectPostgres:
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

func init() {
	// sqlx does not know the modernc driver name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}
