package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tabcoin-ledger-go/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// dialect captures what differs between the SQLite and Postgres backends:
// placeholder style, transaction isolation and schema guards.
type dialect struct {
	name       string
	driverName string
	numbered   bool
	txOptions  *sql.TxOptions
	guards     []string
}

var sqliteDialect = dialect{
	name:       "sqlite3",
	driverName: "sqlite3",
	// SQLite transactions are serializable; the WAL snapshot plus the
	// single-writer lock reject stale writers with SQLITE_BUSY.
	txOptions: nil,
	guards: []string{
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "pgx",
	numbered:   true,
	txOptions:  &sql.TxOptions{Isolation: sql.LevelSerializable},
	guards: []string{
		`CREATE OR REPLACE FUNCTION ledger_reject_mutation() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'ledger entries are append-only';
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries`,
		`CREATE TRIGGER ledger_entries_append_only
		BEFORE UPDATE OR DELETE ON ledger_entries
		FOR EACH ROW EXECUTE FUNCTION ledger_reject_mutation()`,
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return sqliteDialect, nil
	case "postgres", "pgx":
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind rewrites ? placeholders into $1..$n for numbered dialects.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// isConflict reports whether err is transient write contention.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, store.ErrSerializationConflict) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classify wraps err with msg and tags contention with ErrSerializationConflict.
func classify(msg string, err error) error {
	if isConflict(err) && !errors.Is(err, store.ErrSerializationConflict) {
		return fmt.Errorf("%s: %w: %w", msg, store.ErrSerializationConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
