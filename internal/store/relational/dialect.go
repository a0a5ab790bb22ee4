package relational

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects SQL syntax and error classification.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, SQLite:
		return d, nil
	default:
		return "", fmt.Errorf("unknown SQL dialect: %q", s)
	}
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain literal question marks.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ddl expands the dialect tokens used in schema statements.
func (d Dialect) ddl(stmt string) string {
	var r *strings.Replacer
	switch d {
	case Postgres:
		r = strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{json}}", "JSONB",
			"{{ts}}", "TIMESTAMPTZ",
			"{{view}}", "CREATE OR REPLACE VIEW",
		)
	default:
		r = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{json}}", "TEXT",
			"{{ts}}", "TIMESTAMP",
			"{{view}}", "CREATE VIEW IF NOT EXISTS",
		)
	}
	return r.Replace(stmt)
}
