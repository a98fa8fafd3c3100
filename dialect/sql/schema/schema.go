// Package schema creates, inspects and drops the tables that back entity
// shapes.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/dialect/sql"
	nodeschema "github.com/syssam/nodestore/schema"
)

// DefaultSchema returns the schema used when a table name carries none.
// MySQL tables live in the database of the connection.
func DefaultSchema(d string) string {
	switch d {
	case dialect.Postgres:
		return "public"
	case dialect.SQLite:
		return "main"
	default:
		return ""
	}
}

// Column is a physical table column.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Increment  bool
	Indexed    bool
}

// Table is the physical layout of a shape for one dialect.
type Table struct {
	Name       sql.TableName
	Columns    []*Column
	PrimaryKey *Column
}

// NewTable resolves the column types of shape for dialect d.
func NewTable(d string, name sql.TableName, shape *nodeschema.Shape) (*Table, error) {
	t := &Table{Name: name, Columns: make([]*Column, 0, len(shape.Columns))}
	for _, fd := range shape.Columns {
		typ, err := fd.SQLType(d)
		if err != nil {
			return nil, fmt.Errorf("schema: table %s: %w", name.Name, err)
		}
		c := &Column{
			Name:       fd.Name,
			Type:       typ,
			Nullable:   fd.Nillable,
			PrimaryKey: fd.PrimaryKey,
			Increment:  fd.Increment,
			Indexed:    fd.Indexed,
		}
		if c.PrimaryKey {
			t.PrimaryKey = c
		}
		t.Columns = append(t.Columns, c)
	}
	return t, nil
}

// CreateStatements returns the CREATE TABLE statement followed by one
// CREATE INDEX statement per indexed column. MySQL declares its indexes
// inline.
func (t *Table) CreateStatements(d string) []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(t.Name.Quoted(d))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sql.Quote(d, c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type)
		if c.Nullable {
			b.WriteString(" NULL")
		} else {
			b.WriteString(" NOT NULL")
		}
	}
	if t.PrimaryKey != nil {
		b.WriteString(", PRIMARY KEY(")
		b.WriteString(sql.Quote(d, t.PrimaryKey.Name))
		b.WriteByte(')')
	}
	var indexes []string
	for _, c := range t.Columns {
		if !c.Indexed || c.PrimaryKey {
			continue
		}
		name := t.Name.Name + "_" + c.Name
		switch d {
		case dialect.MySQL:
			fmt.Fprintf(&b, ", INDEX %s (%s)", sql.Quote(d, name), sql.Quote(d, c.Name))
		case dialect.SQLite:
			// SQLite qualifies the index name, not the table.
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				sql.Table(t.Name.Schema, name).Quoted(d), sql.Quote(d, t.Name.Name), sql.Quote(d, c.Name)))
		default:
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				sql.Quote(d, name), t.Name.Quoted(d), sql.Quote(d, c.Name)))
		}
	}
	b.WriteByte(')')
	return append([]string{b.String()}, indexes...)
}

// CreateTable creates the table of shape if it does not exist yet.
func CreateTable(ctx context.Context, drv dialect.Driver, name sql.TableName, shape *nodeschema.Shape) error {
	t, err := NewTable(drv.Dialect(), name, shape)
	if err != nil {
		return err
	}
	for _, stmt := range t.CreateStatements(drv.Dialect()) {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("schema: create table %s: %w", name.Name, err)
		}
	}
	return nil
}

// TableExists reports whether the table exists in the catalog.
func TableExists(ctx context.Context, drv dialect.Driver, name sql.TableName) (bool, error) {
	d := drv.Dialect()
	var (
		query string
		args  []any
	)
	switch {
	case d == dialect.SQLite:
		query = "SELECT COUNT(*) FROM " + sql.Quote(d, schemaOf(d, name)) + ".sqlite_master WHERE type = 'table' AND name = @0"
		args = []any{name.Name}
	case d == dialect.MySQL && name.Schema == "":
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = @0"
		args = []any{name.Name}
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = @0 AND table_name = @1"
		args = []any{schemaOf(d, name), name.Name}
	}
	n, err := queryInt(ctx, drv, query, args)
	if err != nil {
		return false, fmt.Errorf("schema: table exists %s: %w", name.Name, err)
	}
	return n > 0, nil
}

// ListTables returns the names of all tables in schema, sorted.
func ListTables(ctx context.Context, drv dialect.Driver, schema string) ([]string, error) {
	d := drv.Dialect()
	if schema == "" {
		schema = DefaultSchema(d)
	}
	var (
		query string
		args  []any
	)
	switch {
	case d == dialect.SQLite:
		query = "SELECT name FROM " + sql.Quote(d, schema) + ".sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
		args = []any{}
	case d == dialect.MySQL && schema == "":
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
		args = []any{}
	default:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = @0 ORDER BY table_name"
		args = []any{schema}
	}
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("schema: list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("schema: list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DropTable drops the table if it exists.
func DropTable(ctx context.Context, drv dialect.Driver, name sql.TableName) error {
	if err := drv.Exec(ctx, "DROP TABLE IF EXISTS "+name.Quoted(drv.Dialect()), []any{}, nil); err != nil {
		return fmt.Errorf("schema: drop table %s: %w", name.Name, err)
	}
	return nil
}

// InspectColumns reads the columns of a table from the catalog.
// Column types are reported as the catalog spells them.
func InspectColumns(ctx context.Context, drv dialect.Driver, name sql.TableName) ([]*Column, error) {
	d := drv.Dialect()
	var (
		query string
		args  []any
	)
	switch {
	case d == dialect.SQLite:
		query = `SELECT name, type, "notnull", pk FROM pragma_table_info(@0, @1) ORDER BY cid`
		args = []any{name.Name, schemaOf(d, name)}
	case d == dialect.MySQL && name.Schema == "":
		query = "SELECT column_name, data_type, is_nullable, column_key FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = @0 ORDER BY ordinal_position"
		args = []any{name.Name}
	case d == dialect.MySQL:
		query = "SELECT column_name, data_type, is_nullable, column_key FROM information_schema.columns WHERE table_schema = @0 AND table_name = @1 ORDER BY ordinal_position"
		args = []any{name.Schema, name.Name}
	default:
		query = "SELECT c.column_name, c.data_type, c.is_nullable, " +
			"CASE WHEN k.column_name IS NULL THEN '' ELSE 'PRI' END " +
			"FROM information_schema.columns c " +
			"LEFT JOIN information_schema.table_constraints t ON t.table_schema = c.table_schema AND t.table_name = c.table_name AND t.constraint_type = 'PRIMARY KEY' " +
			"LEFT JOIN information_schema.key_column_usage k ON k.constraint_name = t.constraint_name AND k.table_schema = c.table_schema AND k.column_name = c.column_name " +
			"WHERE c.table_schema = @0 AND c.table_name = @1 ORDER BY c.ordinal_position"
		args = []any{schemaOf(d, name), name.Name}
	}
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("schema: inspect %s: %w", name.Name, err)
	}
	defer rows.Close()
	var columns []*Column
	for rows.Next() {
		c := &Column{}
		if d == dialect.SQLite {
			var notNull, pk int64
			if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
				return nil, fmt.Errorf("schema: inspect %s: %w", name.Name, err)
			}
			c.Nullable, c.PrimaryKey = notNull == 0, pk > 0
		} else {
			var nullable, key string
			if err := rows.Scan(&c.Name, &c.Type, &nullable, &key); err != nil {
				return nil, fmt.Errorf("schema: inspect %s: %w", name.Name, err)
			}
			c.Nullable, c.PrimaryKey = nullable == "YES", key == "PRI"
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func schemaOf(d string, name sql.TableName) string {
	if name.Schema != "" {
		return name.Schema
	}
	return DefaultSchema(d)
}

func queryInt(ctx context.Context, drv dialect.Driver, query string, args []any) (int64, error) {
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}
