package database

import "strings"

// QueryBuilder rewrites queries written with ? placeholders for a dialect.
type QueryBuilder struct {
	dialect Dialect
}

func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build numbers the ? placeholders of query for the dialect, so
// "WHERE id = ? AND nickname = ?" becomes "WHERE id = $1 AND nickname = $2"
// on PostgreSQL. A ? inside a quoted string literal is left alone.
func (qb *QueryBuilder) Build(query string) string {
	if qb.dialect.Placeholder(1) == "?" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteString(qb.dialect.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// BuildWithReturning is Build for an INSERT whose generated column must be
// read back when LastInsertId is unavailable.
func (qb *QueryBuilder) BuildWithReturning(query, column string) string {
	q := qb.Build(query)
	if qb.dialect.SupportsLastInsertID() {
		return q
	}
	return q + qb.dialect.ReturningClause(column)
}
