package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/schema/field"
)

// Entity is implemented by types stored through the mapper. Fields must
// return the same column list, in the same order, for every instance.
type Entity interface {
	Fields() []field.Field
}

// KeyKind is the identity contract of an entity.
type KeyKind uint8

// Identity contracts.
const (
	KeyNone      KeyKind = iota // no primary key, rows are append-only
	KeyIncrement                // integer key generated by the database
	KeyUnique                   // globally unique key supplied by the caller
)

var keyNames = [...]string{
	KeyNone:      "none",
	KeyIncrement: "increment",
	KeyUnique:    "unique",
}

// String returns the name of the key kind.
func (k KeyKind) String() string {
	if int(k) < len(keyNames) {
		return keyNames[k]
	}
	return "invalid"
}

// Shape is the physical column layout of an entity type.
type Shape struct {
	Type    reflect.Type
	Name    string
	Columns []*field.Descriptor
	Key     KeyKind
	pk      int
	index   map[string]int
}

// PrimaryKey returns the primary key column, or nil for append-only shapes.
func (s *Shape) PrimaryKey() *field.Descriptor {
	if s.pk < 0 {
		return nil
	}
	return s.Columns[s.pk]
}

// PrimaryKeyIndex returns the position of the primary key column, or -1.
func (s *Shape) PrimaryKeyIndex() int { return s.pk }

// Column returns the position of the named column.
func (s *Shape) Column(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// ColumnNames returns the column names in declaration order.
func (s *Shape) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Registry describes entity types and memoizes their shapes.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	shapes map[reflect.Type]*Shape
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[reflect.Type]*Shape)}
}

// Describe returns the shape of the entity type of e. The first call for a
// type derives the shape from a fresh zero value; later calls hit the cache.
func (r *Registry) Describe(e Entity) (*Shape, error) {
	t := reflect.TypeOf(e)
	if t == nil {
		return nil, nodestore.NewSchemaError("<nil>", "nil entity")
	}
	r.mu.RLock()
	s, ok := r.shapes[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	s, err := describe(t, e)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.shapes[t]; ok {
		return cached, nil
	}
	r.shapes[t] = s
	return s, nil
}

// Len returns the number of described types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shapes)
}

func describe(t reflect.Type, e Entity) (*Shape, error) {
	name := t.String()
	if t.Kind() == reflect.Pointer {
		e = reflect.New(t.Elem()).Interface().(Entity)
	}
	fields := e.Fields()
	if len(fields) == 0 {
		return nil, nodestore.NewSchemaError(name, "no mapped columns")
	}
	s := &Shape{
		Type:    t,
		Name:    name,
		Columns: make([]*field.Descriptor, len(fields)),
		pk:      -1,
		index:   make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, nodestore.NewSchemaError(name, "%v", d.Err)
		}
		if _, ok := s.index[d.Name]; ok {
			return nil, nodestore.NewSchemaError(name, "duplicate column %q", d.Name)
		}
		if d.PrimaryKey {
			if s.pk >= 0 {
				return nil, nodestore.NewSchemaError(name, "more than one primary key (%q and %q)", s.Columns[s.pk].Name, d.Name)
			}
			s.pk = i
		}
		s.Columns[i] = d
		s.index[d.Name] = i
	}
	switch pk := s.PrimaryKey(); {
	case pk == nil:
		s.Key = KeyNone
	case pk.Increment:
		s.Key = KeyIncrement
	default:
		s.Key = KeyUnique
	}
	return s, nil
}

// Bind returns the fields of e after checking they match the shape.
func (s *Shape) Bind(e Entity) ([]field.Field, error) {
	fields := e.Fields()
	if len(fields) != len(s.Columns) {
		return nil, fmt.Errorf("schema %s: entity returned %d fields, shape has %d", s.Name, len(fields), len(s.Columns))
	}
	return fields, nil
}
