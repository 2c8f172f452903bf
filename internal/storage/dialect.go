package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by a repository.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) DriverName() string {
	return string(d)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lock takes the table-level write lock at the start of an exclusive
// transaction. SQLite gets it from BEGIN IMMEDIATE instead.
func (d Dialect) lock(ctx context.Context, tx *sql.Tx) error {
	if d != Postgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "LOCK TABLE cash_book IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return fmt.Errorf("lock cash_book: %w", err)
	}
	return nil
}

// SQLiteDSN builds the modernc.org/sqlite connection string for path.
// Write transactions begin IMMEDIATE so the database lock is held from the
// first statement.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}
