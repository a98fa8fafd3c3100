package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/nodestore/dialect"
)

// Quote quotes an identifier for the given dialect.
func Quote(d, ident string) string {
	if d == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(ident)
}

// TableName is a schema-qualified table name.
type TableName struct {
	Schema string
	Name   string
}

// Table returns a TableName in the given schema.
func Table(schema, name string) TableName {
	return TableName{Schema: schema, Name: name}
}

// Quoted renders the qualified name for the given dialect,
// e.g. "public"."folder" on postgres.
func (t TableName) Quoted(d string) string {
	if t.Schema == "" {
		return Quote(d, t.Name)
	}
	return Quote(d, t.Schema) + "." + Quote(d, t.Name)
}

// String renders the name in postgres form.
func (t TableName) String() string {
	return t.Quoted(dialect.Postgres)
}

// Rebind rewrites the positional placeholders @0, @1, ... of query into the
// placeholder syntax of the dialect. Placeholders inside quoted strings or
// identifiers are left untouched. A placeholder may appear more than once;
// for MySQL, which only knows anonymous placeholders, the returned argument
// list is expanded accordingly.
func Rebind(d, query string, args []any) (string, []any, error) {
	if !strings.Contains(query, "@") {
		return query, args, nil
	}
	var (
		b     strings.Builder
		out   []any
		quote byte
	)
	b.Grow(len(query) + 8)
	if d == dialect.MySQL {
		out = make([]any, 0, len(args))
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '@' && i+1 < len(query) && isDigit(query[i+1]):
			j := i + 1
			for j < len(query) && isDigit(query[j]) {
				j++
			}
			n, err := strconv.Atoi(query[i+1 : j])
			if err != nil {
				return "", nil, fmt.Errorf("dialect/sql: invalid placeholder %q: %w", query[i:j], err)
			}
			if n >= len(args) {
				return "", nil, fmt.Errorf("dialect/sql: placeholder @%d out of range (%d args)", n, len(args))
			}
			switch d {
			case dialect.MySQL:
				b.WriteByte('?')
				out = append(out, args[n])
			case dialect.SQLite:
				b.WriteByte('?')
				b.WriteString(strconv.Itoa(n + 1))
			default:
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n + 1))
			}
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	if d == dialect.MySQL {
		return b.String(), out, nil
	}
	return b.String(), args, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Placeholders returns "@from, @from+1, ..." for n consecutive arguments.
func Placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(from + i))
	}
	return b.String()
}
