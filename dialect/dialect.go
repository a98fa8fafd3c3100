package dialect

import (
	"context"
	"fmt"
)

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. v, if not nil,
	// must be a *sql.Result that receives the driver result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. v must be a *sql.Rows
	// from package dialect/sql.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the store.
type Driver interface {
	ExecQuerier
	// Close closes the underlying connections.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Valid reports whether name is a supported dialect.
func Valid(name string) error {
	switch name {
	case MySQL, SQLite, Postgres:
		return nil
	default:
		return fmt.Errorf("dialect: unsupported dialect %q", name)
	}
}
