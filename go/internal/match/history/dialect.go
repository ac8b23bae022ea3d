package history

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the database/sql driver and its placeholder syntax.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect accepts the configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case DialectPostgres, "postgresql", "pg":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unknown history driver %q", s)
	}
}

// driverName is the name the driver registered with database/sql: lib/pq for postgres,
// modernc for sqlite.
func (d Dialect) driverName() string {
	return string(d)
}

// placeholder returns bind parameter n (1-based). SQLite takes the numbered ?NNN
// form so reordered and repeated parameters keep binding by position.
func (d Dialect) placeholder(n string) string {
	if d == DialectPostgres {
		return "$" + n
	}
	return "?" + n
}

// bind rewrites the $n placeholders of a postgres-style query for d. Text inside single
// quotes is copied as is.
func (d Dialect) bind(query string) string {
	if d == DialectPostgres {
		return query
	}
	var b strings.Builder
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case !quoted && c == '$' && i+1 < len(query) && isDigit(query[i+1]):
			j := i + 1
			for j < len(query) && isDigit(query[j]) {
				j++
			}
			b.WriteString(d.placeholder(query[i+1 : j]))
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
