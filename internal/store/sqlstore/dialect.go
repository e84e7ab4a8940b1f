package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect isolates driver-specific SQL. Everything else in the store is
// written against the common subset and bound through sqlx's Rebind.
type Dialect interface {
	Name() string

	// LimitRows rewrites query to return at most n rows.
	LimitRows(query string, n int) string

	// LockQuery returns the statement the row-lock semaphore executes to
	// take the named lock row, and whether it is an UPDATE rather than a
	// row-returning SELECT.
	LockQuery(prefix string) (query string, isUpdate bool)

	// SavepointSQL and RollbackToSavepointSQL bracket a statement that
	// may fail without aborting the surrounding transaction.
	SavepointSQL(name string) string
	RollbackToSavepointSQL(name string) string

	// BlobType and BoolType name the column types used by Migrate.
	BlobType() string
	BoolType() string
}

// PostgresDialect targets PostgreSQL via lib/pq.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) LimitRows(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}

func (PostgresDialect) LockQuery(prefix string) (string, bool) {
	return "SELECT lock_name FROM " + prefix + "locks WHERE sched_name = ? AND lock_name = ? FOR UPDATE", false
}

func (PostgresDialect) SavepointSQL(name string) string { return "SAVEPOINT " + name }

func (PostgresDialect) RollbackToSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

func (PostgresDialect) BlobType() string { return "BYTEA" }

func (PostgresDialect) BoolType() string { return "BOOLEAN" }

// SQLServerDialect targets Microsoft SQL Server, which has no
// SELECT ... FOR UPDATE; the lock row is taken with a self-assignment
// UPDATE and row limits use TOP.
type SQLServerDialect struct{}

func (SQLServerDialect) Name() string { return "sqlserver" }

func (SQLServerDialect) LimitRows(query string, n int) string {
	return strings.Replace(query, "SELECT ", fmt.Sprintf("SELECT TOP %d ", n), 1)
}

func (SQLServerDialect) LockQuery(prefix string) (string, bool) {
	return "UPDATE " + prefix + "locks SET lock_name = lock_name WHERE sched_name = ? AND lock_name = ?", true
}

func (SQLServerDialect) SavepointSQL(name string) string { return "SAVE TRANSACTION " + name }

func (SQLServerDialect) RollbackToSavepointSQL(name string) string {
	return "ROLLBACK TRANSACTION " + name
}

func (SQLServerDialect) BlobType() string { return "VARBINARY(MAX)" }

func (SQLServerDialect) BoolType() string { return "BIT" }
