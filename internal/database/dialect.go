package database

// Dialect hides the SQL differences between the supported backends.
type Dialect interface {
	// DriverName is the name registered with database/sql.
	DriverName() string

	// Placeholder renders the bind parameter at the 1-based position.
	Placeholder(position int) string

	// SupportsLastInsertID reports whether sql.Result.LastInsertId works.
	// Backends without it get a RETURNING clause on inserts.
	SupportsLastInsertID() bool
	ReturningClause(column string) string

	// InitStatements run once after the connection is opened.
	InitStatements() []string

	IsDuplicateKeyError(err error) bool

	// PrimaryKeyColumn is the type of an auto-incrementing id column.
	PrimaryKeyColumn() string
}

// DialectType names a backend in configuration.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the Dialect for t. Unknown types fall back to SQLite.
func NewDialect(t DialectType) Dialect {
	if t == DialectPostgres {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}
