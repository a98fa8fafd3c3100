package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/pool"
)

// Driver is a dialect.Driver implementation for SQL based databases.
// Every statement runs on a connection checked out of a bounded pool.
type Driver struct {
	db      *sql.DB
	pool    *pool.Pool[*sql.Conn]
	dialect string
}

// Open wraps the database/sql.Open method and returns a pool-backed Driver.
// The dialect name doubles as the database/sql driver name.
func Open(name, source string, opts ...pool.Option) (*Driver, error) {
	if err := dialect.Valid(name); err != nil {
		return nil, err
	}
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(name, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB with a pool-backed Driver.
func OpenDB(name string, db *sql.DB, opts ...pool.Option) *Driver {
	return NewDriver(name, db, pool.New(db.Conn, opts...))
}

// NewDriver creates a Driver from an existing pool, which may be shared
// with other drivers through a pool.Factory.
func NewDriver(name string, db *sql.DB, p *pool.Pool[*sql.Conn]) *Driver {
	db.SetMaxOpenConns(p.MaxSize())
	return &Driver{db: db, pool: p, dialect: name}
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Pool returns the connection pool of the driver.
func (d *Driver) Pool() *pool.Pool[*sql.Conn] { return d.pool }

// Dialect implements the dialect.Driver interface.
func (d *Driver) Dialect() string { return d.dialect }

// Conn checks a connection out of the pool. The returned release function
// must be called once the connection is no longer used.
func (d *Driver) Conn(ctx context.Context) (*Conn, func(), error) {
	h, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &Conn{ExecQuerier: h.Conn, dialect: d.dialect}, h.Release, nil
}

// Exec implements the dialect.Exec method.
func (d *Driver) Exec(ctx context.Context, query string, args, v any) error {
	c, release, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	defer release()
	return c.Exec(ctx, query, args, v)
}

// Query implements the dialect.Query method. The connection stays checked
// out until the returned rows are closed.
func (d *Driver) Query(ctx context.Context, query string, args, v any) error {
	c, release, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	if err := c.Query(ctx, query, args, v); err != nil {
		release()
		return err
	}
	vr := v.(*Rows)
	vr.ColumnScanner = rowsWithCloser{vr.ColumnScanner, func() error {
		release()
		return nil
	}}
	return nil
}

// Close disposes the pool and closes the database. It fails if any
// connection is still checked out.
func (d *Driver) Close() error {
	if err := d.pool.Dispose(); err != nil {
		return fmt.Errorf("dialect/sql: close: %w", err)
	}
	return d.db.Close()
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
// Placeholders are rebound to the dialect before execution.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	query, argv, err := Rebind(c.dialect, query, argv)
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	query, argv, err := Rebind(c.dialect, query, argv)
	if err != nil {
		return err
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

var (
	_ dialect.Driver      = (*Driver)(nil)
	_ dialect.ExecQuerier = Conn{}
)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
