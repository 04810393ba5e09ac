package database

import (
	"strconv"
	"strings"
)

// PostgresDialect targets github.com/lib/pq.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string { return "postgres" }

func (d *PostgresDialect) Placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

func (d *PostgresDialect) SupportsLastInsertID() bool { return false }

func (d *PostgresDialect) ReturningClause(column string) string {
	return " RETURNING " + column
}

func (d *PostgresDialect) InitStatements() []string { return nil }

// IsDuplicateKeyError matches unique_violation (SQLSTATE 23505) by its text,
// since pq.Error is not always what reaches the caller.
func (d *PostgresDialect) IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"duplicate key", "23505", "unique constraint"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (d *PostgresDialect) PrimaryKeyColumn() string {
	return "BIGSERIAL PRIMARY KEY"
}
