package inventory

import (
	"strconv"
	"strings"
)

// dialect captures the SQL differences between the SQLite and PostgreSQL
// backends. Queries are written with '?' placeholders and rebound per dialect.
type dialect struct {
	name       string
	numbered   bool
	lockSuffix string
}

var (
	sqliteDialect = dialect{name: "sqlite"}
	// SQLite takes the database write lock at BEGIN IMMEDIATE, so row
	// selection needs no suffix there. PostgreSQL locks the selected rows.
	postgresDialect = dialect{name: "postgres", numbered: true, lockSuffix: " FOR UPDATE"}
)

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func (d dialect) forUpdate(query string) string {
	return query + d.lockSuffix
}
