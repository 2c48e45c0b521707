package database

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// QueryBuilder converts SQL queries with ? placeholders to dialect-specific format.
type QueryBuilder struct {
	dialect Dialect
}

// NewQueryBuilder creates a new QueryBuilder for the given dialect.
func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build converts a query with ? placeholders to dialect-specific placeholders.
//
// Example:
//
//	input:    "SELECT * FROM runs WHERE id = ? AND started_at > ?"
//	SQLite:   "SELECT * FROM runs WHERE id = ? AND started_at > ?"
//	Postgres: "SELECT * FROM runs WHERE id = $1 AND started_at > $2"
func (qb *QueryBuilder) Build(query string) string {
	return sqlx.Rebind(qb.dialect.BindType(), query)
}

// Schema expands the {{pk}} marker in a DDL statement to the dialect's
// surrogate key definition.
func (qb *QueryBuilder) Schema(ddl string) string {
	return strings.ReplaceAll(ddl, "{{pk}}", qb.dialect.AutoIncrementKey())
}
