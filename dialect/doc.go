// Package dialect provides the backend abstraction used by the store.
//
// A dialect names one relational backend and decides how identifiers are
// quoted, how positional placeholders are rendered and how upserts and
// generated keys are expressed.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    ExecQuerier
//	    Close() error
//	    Dialect() string
//	}
//
// # ExecQuerier Interface
//
// Statements use positional placeholders @0, @1, ... regardless of the
// backend; the driver rewrites them before execution.
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// # Sub-packages
//
//   - dialect/sql: pool-backed driver, identifier quoting and placeholder rebinding
//   - dialect/sql/schema: table creation and catalog inspection
//   - dialect/sql/sqlgraph: the entity mapper
package dialect
