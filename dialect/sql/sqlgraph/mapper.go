// Package sqlgraph maps entities to rows. It generates the INSERT, UPSERT,
// UPDATE and SELECT statements of entity shapes and scans result rows
// back into entities.
package sqlgraph

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/dialect/sql"
	sqlschema "github.com/syssam/nodestore/dialect/sql/schema"
	"github.com/syssam/nodestore/internal/observe"
	"github.com/syssam/nodestore/schema"
	"github.com/syssam/nodestore/schema/field"
)

// Mapper executes entity statements through a driver.
type Mapper struct {
	drv    dialect.Driver
	shapes *schema.Registry
	log    *observe.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithRegistry shares a shape registry between mappers.
func WithRegistry(r *schema.Registry) Option {
	return func(m *Mapper) {
		m.shapes = r
	}
}

// WithLogger sets the logger statements are described to.
func WithLogger(l *observe.Logger) Option {
	return func(m *Mapper) {
		m.log = l
	}
}

// NewMapper returns a Mapper over drv.
func NewMapper(drv dialect.Driver, opts ...Option) *Mapper {
	m := &Mapper{drv: drv}
	for _, opt := range opts {
		opt(m)
	}
	if m.shapes == nil {
		m.shapes = schema.NewRegistry()
	}
	if m.log == nil {
		m.log = observe.Nop()
	}
	return m
}

// Driver returns the underlying driver.
func (m *Mapper) Driver() dialect.Driver { return m.drv }

// Dialect returns the dialect of the underlying driver.
func (m *Mapper) Dialect() string { return m.drv.Dialect() }

// Describe returns the shape of e.
func (m *Mapper) Describe(e schema.Entity) (*schema.Shape, error) {
	return m.shapes.Describe(e)
}

type insertConfig struct {
	primaryKey bool
	upsert     bool
	merge      bool
}

// InsertOption configures Insert.
type InsertOption func(*insertConfig)

// InsertPrimaryKey writes the primary key supplied by the caller instead
// of requesting a generated one.
func InsertPrimaryKey() InsertOption {
	return func(c *insertConfig) { c.primaryKey = true }
}

// Upsert updates the existing row on a primary key conflict.
func Upsert() InsertOption {
	return func(c *insertConfig) { c.upsert = true }
}

// Merge leaves nillable columns holding their zero value out of the
// statement, so existing values are kept.
func Merge() InsertOption {
	return func(c *insertConfig) { c.merge = true }
}

// Insert writes e into table and returns its key, or nil for shapes
// without a primary key. A generated key is also stored into e.
func (m *Mapper) Insert(ctx context.Context, table sql.TableName, e schema.Entity, opts ...InsertOption) (any, error) {
	cfg := &insertConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	shape, fields, err := m.bind(e)
	if err != nil {
		return nil, err
	}
	d := m.drv.Dialect()
	pk := shape.PrimaryKeyIndex()
	var (
		columns []string
		args    []any
	)
	for i, c := range shape.Columns {
		if i == pk && !cfg.primaryKey {
			continue
		}
		if cfg.merge && c.Nillable && fields[i].IsZero() {
			m.log.Describe(ctx, "sqlgraph: merge omits column", "table", table.Name, "column", c.Name)
			continue
		}
		v, err := fields[i].Value()
		if err != nil {
			return nil, err
		}
		columns = append(columns, c.Name)
		args = append(args, v)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Quoted(d))
	writeValues(&b, d, columns, 1)
	if cfg.upsert && pk >= 0 {
		writeConflict(&b, d, shape.Columns[pk].Name, columns)
	}
	generated := pk >= 0 && !cfg.primaryKey
	if generated && d != dialect.MySQL {
		b.WriteString(" RETURNING ")
		b.WriteString(sql.Quote(d, shape.Columns[pk].Name))
	}
	query := b.String()
	m.log.Describe(ctx, "sqlgraph: insert", "table", table.Name, "query", query)

	switch {
	case generated && d == dialect.MySQL:
		var res sql.Result
		if err := m.drv.Exec(ctx, query, args, &res); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "insert", wrapConstraint(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, nodestore.NewMutationError(table.Name, "insert", err)
		}
		if err := fields[pk].Scan(id); err != nil {
			return nil, err
		}
	case generated:
		rows := &sql.Rows{}
		if err := m.drv.Query(ctx, query, args, rows); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "insert", wrapConstraint(err))
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, nodestore.NewMutationError(table.Name, "insert", wrapConstraint(err))
			}
			return nil, nodestore.NewMutationError(table.Name, "insert", fmt.Errorf("no generated key returned"))
		}
		if err := rows.Scan(fields[pk]); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "insert", err)
		}
	default:
		if err := m.drv.Exec(ctx, query, args, nil); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "insert", wrapConstraint(err))
		}
	}
	if pk < 0 {
		return nil, nil
	}
	return fields[pk].Interface(), nil
}

// Update writes the non-key columns of e to the row with its primary key
// and returns the number of affected rows. Zero means no row matched.
func (m *Mapper) Update(ctx context.Context, table sql.TableName, e schema.Entity, merge bool) (int64, error) {
	shape, fields, err := m.bind(e)
	if err != nil {
		return 0, err
	}
	pk := shape.PrimaryKeyIndex()
	if pk < 0 {
		return 0, nodestore.NewSchemaError(shape.Name, "update requires a primary key")
	}
	d := m.drv.Dialect()
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("UPDATE ")
	b.WriteString(table.Quoted(d))
	b.WriteString(" SET ")
	for i, c := range shape.Columns {
		if i == pk {
			continue
		}
		if merge && c.Nillable && fields[i].IsZero() {
			m.log.Describe(ctx, "sqlgraph: merge omits column", "table", table.Name, "column", c.Name)
			continue
		}
		v, err := fields[i].Value()
		if err != nil {
			return 0, err
		}
		if len(args) > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = @%d", sql.Quote(d, c.Name), len(args))
		args = append(args, v)
	}
	key, err := fields[pk].Value()
	if err != nil {
		return 0, err
	}
	pkName := sql.Quote(d, shape.Columns[pk].Name)
	if len(args) == 0 {
		fmt.Fprintf(&b, "%s = %s", pkName, pkName)
	}
	fmt.Fprintf(&b, " WHERE %s = @%d", pkName, len(args))
	args = append(args, key)

	query := b.String()
	m.log.Describe(ctx, "sqlgraph: update", "table", table.Name, "query", query)
	var res sql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, nodestore.NewMutationError(table.Name, "update", wrapConstraint(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nodestore.NewMutationError(table.Name, "update", err)
	}
	return n, nil
}

// BulkInsert writes all entities with one multi-row INSERT and returns
// their keys in input order. All entities must be of the same type.
func (m *Mapper) BulkInsert(ctx context.Context, table sql.TableName, entities []schema.Entity, insertPrimaryKey bool) ([]any, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	shape, err := m.shapes.Describe(entities[0])
	if err != nil {
		return nil, err
	}
	d := m.drv.Dialect()
	pk := shape.PrimaryKeyIndex()
	var columns []string
	for i, c := range shape.Columns {
		if i != pk || insertPrimaryKey {
			columns = append(columns, c.Name)
		}
	}
	bound := make([][]field.Field, len(entities))
	args := make([]any, 0, len(entities)*len(columns))
	for n, e := range entities {
		if t := reflect.TypeOf(e); t != shape.Type {
			return nil, nodestore.NewSchemaError(shape.Name, "bulk insert of mixed shapes (%s at %d)", t, n)
		}
		fields, err := shape.Bind(e)
		if err != nil {
			return nil, err
		}
		bound[n] = fields
		for i := range shape.Columns {
			if i == pk && !insertPrimaryKey {
				continue
			}
			v, err := fields[i].Value()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Quoted(d))
	writeValues(&b, d, columns, len(entities))
	generated := pk >= 0 && !insertPrimaryKey
	if generated && d != dialect.MySQL {
		b.WriteString(" RETURNING ")
		b.WriteString(sql.Quote(d, shape.Columns[pk].Name))
	}
	query := b.String()
	m.log.Describe(ctx, "sqlgraph: bulk insert", "table", table.Name, "rows", len(entities))

	switch {
	case generated && d == dialect.MySQL:
		var res sql.Result
		if err := m.drv.Exec(ctx, query, args, &res); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "bulk insert", wrapConstraint(err))
		}
		first, err := res.LastInsertId()
		if err != nil {
			return nil, nodestore.NewMutationError(table.Name, "bulk insert", err)
		}
		// MySQL reports the first key of the batch; keys are consecutive.
		for i, fields := range bound {
			if err := fields[pk].Scan(first + int64(i)); err != nil {
				return nil, err
			}
		}
	case generated:
		rows := &sql.Rows{}
		if err := m.drv.Query(ctx, query, args, rows); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "bulk insert", wrapConstraint(err))
		}
		defer rows.Close()
		for i := 0; rows.Next(); i++ {
			if i >= len(bound) {
				return nil, nodestore.NewMutationError(table.Name, "bulk insert", fmt.Errorf("more keys returned than rows inserted"))
			}
			if err := rows.Scan(bound[i][pk]); err != nil {
				return nil, nodestore.NewMutationError(table.Name, "bulk insert", err)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "bulk insert", wrapConstraint(err))
		}
	default:
		if err := m.drv.Exec(ctx, query, args, nil); err != nil {
			return nil, nodestore.NewMutationError(table.Name, "bulk insert", wrapConstraint(err))
		}
	}
	if pk < 0 {
		return nil, nil
	}
	keys := make([]any, len(bound))
	for i, fields := range bound {
		keys[i] = fields[pk].Interface()
	}
	return keys, nil
}

// Query runs a statement and scans every row into a new entity of type E.
// Each result column must match a column of the shape of E by name, or
// the sequence fails with a MissingPropertyError. The statement runs when
// iteration starts; breaking out of the loop closes the rows.
//
//	for f, err := range sqlgraph.Query[Folder](ctx, m, `SELECT * FROM "folder" WHERE "name" = @0`, name) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(f.Guid)
//	}
func Query[E any, P interface {
	*E
	schema.Entity
}](ctx context.Context, m *Mapper, query string, args ...any) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		shape, err := m.shapes.Describe(P(new(E)))
		if err != nil {
			yield(nil, err)
			return
		}
		if args == nil {
			args = []any{}
		}
		m.log.Describe(ctx, "sqlgraph: query", "shape", shape.Name, "query", query)
		rows := &sql.Rows{}
		if err := m.drv.Query(ctx, query, args, rows); err != nil {
			yield(nil, nodestore.NewQueryError(shape.Name, "select", err))
			return
		}
		defer rows.Close()
		columns, err := rows.Columns()
		if err != nil {
			yield(nil, nodestore.NewQueryError(shape.Name, "select", err))
			return
		}
		index := make([]int, len(columns))
		for i, c := range columns {
			j, ok := shape.Column(c)
			if !ok {
				yield(nil, &nodestore.MissingPropertyError{Shape: shape.Name, Column: c})
				return
			}
			index[i] = j
		}
		dest := make([]any, len(columns))
		for rows.Next() {
			e := P(new(E))
			fields, err := shape.Bind(e)
			if err != nil {
				yield(nil, err)
				return
			}
			for i, j := range index {
				dest[i] = fields[j]
			}
			if err := rows.Scan(dest...); err != nil {
				yield(nil, nodestore.NewQueryError(shape.Name, "scan", err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, nodestore.NewQueryError(shape.Name, "select", err))
		}
	}
}

// QueryRows runs a statement and yields every row as raw column values.
func (m *Mapper) QueryRows(ctx context.Context, query string, args ...any) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		if args == nil {
			args = []any{}
		}
		m.log.Describe(ctx, "sqlgraph: query rows", "query", query)
		rows := &sql.Rows{}
		if err := m.drv.Query(ctx, query, args, rows); err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()
		columns, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}
		for rows.Next() {
			values := make([]any, len(columns))
			dest := make([]any, len(columns))
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				yield(nil, err)
				return
			}
			if !yield(values, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// QueryScalar returns the first column of the first row, or nil when the
// statement returns no rows.
func (m *Mapper) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	for row, err := range m.QueryRows(ctx, query, args...) {
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			return nil, nil
		}
		return row[0], nil
	}
	return nil, nil
}

// Execute runs a statement and returns the number of affected rows.
func (m *Mapper) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if args == nil {
		args = []any{}
	}
	m.log.Describe(ctx, "sqlgraph: execute", "query", query)
	var res sql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, wrapConstraint(err)
	}
	return res.RowsAffected()
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CreateTable creates the table of the shape of e if it does not exist.
func (m *Mapper) CreateTable(ctx context.Context, table sql.TableName, e schema.Entity) error {
	shape, err := m.shapes.Describe(e)
	if err != nil {
		return err
	}
	m.log.Describe(ctx, "sqlgraph: create table", "table", table.Name, "shape", shape.Name)
	return sqlschema.CreateTable(ctx, m.drv, table, shape)
}

// TableExists reports whether table exists.
func (m *Mapper) TableExists(ctx context.Context, table sql.TableName) (bool, error) {
	return sqlschema.TableExists(ctx, m.drv, table)
}

// ListTables returns the tables of schema.
func (m *Mapper) ListTables(ctx context.Context, schema string) ([]string, error) {
	return sqlschema.ListTables(ctx, m.drv, schema)
}

// DropTable drops table if it exists.
func (m *Mapper) DropTable(ctx context.Context, table sql.TableName) error {
	m.log.Describe(ctx, "sqlgraph: drop table", "table", table.Name)
	return sqlschema.DropTable(ctx, m.drv, table)
}

func (m *Mapper) bind(e schema.Entity) (*schema.Shape, []field.Field, error) {
	shape, err := m.shapes.Describe(e)
	if err != nil {
		return nil, nil, err
	}
	fields, err := shape.Bind(e)
	if err != nil {
		return nil, nil, err
	}
	return shape, fields, nil
}

// writeValues writes the column list and rows placeholder tuples.
func writeValues(b *strings.Builder, d string, columns []string, rows int) {
	if len(columns) == 0 {
		if d == dialect.MySQL {
			b.WriteString(" () VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
		return
	}
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sql.Quote(d, c))
	}
	b.WriteString(") VALUES ")
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(sql.Placeholders(r*len(columns), len(columns)))
		b.WriteByte(')')
	}
}

// writeConflict writes the upsert clause updating every written non-key
// column.
func writeConflict(b *strings.Builder, d, pk string, columns []string) {
	set := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != pk {
			set = append(set, c)
		}
	}
	if len(set) == 0 {
		set = append(set, pk)
	}
	if d == dialect.MySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range set {
			if i > 0 {
				b.WriteString(", ")
			}
			q := sql.Quote(d, c)
			fmt.Fprintf(b, "%s = VALUES(%s)", q, q)
		}
		return
	}
	fmt.Fprintf(b, " ON CONFLICT (%s) DO UPDATE SET ", sql.Quote(d, pk))
	for i, c := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		q := sql.Quote(d, c)
		fmt.Fprintf(b, "%s = EXCLUDED.%s", q, q)
	}
}
