package field

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the fixed-width text layout of time columns. It keeps the
// zone offset of the value, which native timestamp columns drop.
const TimeLayout = "2006-01-02T15:04:05.0000000-07:00"

// A Field is a column bound to one struct field of an entity. It reads the
// bound value for statements and scans query results back into it.
type Field interface {
	Descriptor() *Descriptor
	// Value returns the statement argument of the bound value.
	// Nillable fields holding their zero value return nil.
	Value() (driver.Value, error)
	// Scan stores a database value into the bound struct field.
	Scan(src any) error
	// IsZero reports whether the bound value is the zero value of its type.
	IsZero() bool
	// Interface returns the bound Go value.
	Interface() any
}

// TypeInfo holds the information regarding field type.
type TypeInfo struct {
	Type  Type
	Ident string
}

// String returns the string representation of a type.
func (t TypeInfo) String() string {
	if t.Ident != "" {
		return t.Ident
	}
	return t.Type.String()
}

// A Descriptor for field configuration.
type Descriptor struct {
	Name       string            // column name.
	Info       *TypeInfo         // field type info.
	Nillable   bool              // nullable column.
	PrimaryKey bool              // primary key column.
	Increment  bool              // generated by the database.
	Indexed    bool              // indexing hint.
	SchemaType map[string]string // override field type per dialect.
	Err        error
}

// Builder binds a column to a struct field of type T.
type Builder[T any] struct {
	desc   *Descriptor
	ptr    *T
	encode func(T) (driver.Value, error)
	decode func(src any, dst *T) error
}

func newBuilder[T any](name string, typ Type, p *T) *Builder[T] {
	b := &Builder[T]{
		desc: &Descriptor{Name: name, Info: &TypeInfo{Type: typ}},
		ptr:  p,
	}
	switch {
	case name == "":
		b.desc.Err = errors.New("missing field name")
	case p == nil:
		b.desc.Err = fmt.Errorf("field %q: nil destination", name)
	}
	return b
}

// String returns a new Field with type string.
func String(name string, p *string) *Builder[string] {
	return newBuilder(name, TypeString, p)
}

// Text returns a new string field without a length limit.
func Text(name string, p *string) *Builder[string] {
	return newBuilder(name, TypeText, p)
}

// Int32 returns a new Field with type int32.
func Int32(name string, p *int32) *Builder[int32] {
	b := newBuilder(name, TypeInt32, p)
	b.encode = func(v int32) (driver.Value, error) { return int64(v), nil }
	return b
}

// Int64 returns a new Field with type int64.
func Int64(name string, p *int64) *Builder[int64] {
	return newBuilder(name, TypeInt64, p)
}

// Float64 returns a new Field with type float64.
func Float64(name string, p *float64) *Builder[float64] {
	return newBuilder(name, TypeFloat64, p)
}

// Bool returns a new Field with type bool.
func Bool(name string, p *bool) *Builder[bool] {
	return newBuilder(name, TypeBool, p)
}

// Bytes returns a new Field with type bytes/buffer.
func Bytes(name string, p *[]byte) *Builder[[]byte] {
	b := newBuilder(name, TypeBytes, p)
	b.encode = func(v []byte) (driver.Value, error) {
		if v == nil {
			return []byte{}, nil
		}
		return v, nil
	}
	return b
}

// UUID returns a new Field with type uuid.UUID.
func UUID(name string, p *uuid.UUID) *Builder[uuid.UUID] {
	b := newBuilder(name, TypeUUID, p)
	b.encode = func(v uuid.UUID) (driver.Value, error) { return v.String(), nil }
	b.decode = func(src any, dst *uuid.UUID) error {
		var u uuid.UUID
		if err := u.Scan(src); err != nil {
			return err
		}
		*dst = u
		return nil
	}
	return b
}

// Time returns a new Field with type time.Time. Values are stored as text
// in TimeLayout.
func Time(name string, p *time.Time) *Builder[time.Time] {
	b := newBuilder(name, TypeTime, p)
	b.encode = func(v time.Time) (driver.Value, error) { return v.Format(TimeLayout), nil }
	b.decode = func(src any, dst *time.Time) error {
		t, err := parseTime(src)
		if err != nil {
			return err
		}
		*dst = t
		return nil
	}
	return b
}

// OptionalString returns a nillable string field bound to a pointer.
func OptionalString(name string, p **string) *Builder[*string] {
	return optional(newBuilder(name, TypeString, p))
}

// OptionalInt64 returns a nillable int64 field bound to a pointer.
func OptionalInt64(name string, p **int64) *Builder[*int64] {
	return optional(newBuilder(name, TypeInt64, p))
}

// OptionalFloat64 returns a nillable float64 field bound to a pointer.
func OptionalFloat64(name string, p **float64) *Builder[*float64] {
	return optional(newBuilder(name, TypeFloat64, p))
}

// OptionalTime returns a nillable time field bound to a pointer.
func OptionalTime(name string, p **time.Time) *Builder[*time.Time] {
	b := optional(newBuilder(name, TypeTime, p))
	b.encode = func(v *time.Time) (driver.Value, error) { return v.Format(TimeLayout), nil }
	b.decode = func(src any, dst **time.Time) error {
		t, err := parseTime(src)
		if err != nil {
			return err
		}
		*dst = &t
		return nil
	}
	return b
}

func optional[T any](b *Builder[*T]) *Builder[*T] {
	b.desc.Nillable = true
	b.encode = func(v *T) (driver.Value, error) {
		return driver.DefaultParameterConverter.ConvertValue(*v)
	}
	b.decode = func(src any, dst **T) error {
		var n sql.Null[T]
		if err := n.Scan(src); err != nil {
			return err
		}
		*dst = &n.V
		return nil
	}
	return b
}

// Other returns a new Field with a custom type that implements
// driver.Valuer and whose pointer implements sql.Scanner. SchemaType
// must be set for every dialect the entity is used with.
//
//	field.Other("amount", &e.Amount).
//		SchemaType(map[string]string{
//			dialect.Postgres: "numeric(10,2)",
//		})
func Other[T any](name string, p *T) *Builder[T] {
	b := newBuilder(name, TypeOther, p)
	b.desc.Info.Ident = reflect.TypeFor[T]().String()
	if _, ok := any(p).(sql.Scanner); !ok && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: *%s must implement sql.Scanner", name, b.desc.Info.Ident)
	}
	b.encode = func(v T) (driver.Value, error) {
		vr, ok := any(v).(driver.Valuer)
		if !ok {
			return nil, fmt.Errorf("field %q: %T must implement driver.Valuer", name, v)
		}
		return vr.Value()
	}
	b.decode = func(src any, dst *T) error {
		return any(dst).(sql.Scanner).Scan(src)
	}
	return b
}

// PrimaryKey marks the column as the primary key of the table.
func (b *Builder[T]) PrimaryKey() *Builder[T] {
	b.desc.PrimaryKey = true
	if b.desc.Nillable && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: primary key cannot be nillable", b.desc.Name)
	}
	return b
}

// Increment marks an int64 primary key as generated by the database.
func (b *Builder[T]) Increment() *Builder[T] {
	b.desc.Increment = true
	b.desc.PrimaryKey = true
	if b.desc.Info.Type != TypeInt64 && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: increment requires an int64 field, got %s", b.desc.Name, b.desc.Info)
	}
	return b
}

// Nillable indicates that this field is a nullable. Zero values are
// stored as NULL, and NULL is read back as the zero value.
func (b *Builder[T]) Nillable() *Builder[T] {
	b.desc.Nillable = true
	if b.desc.PrimaryKey && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: primary key cannot be nillable", b.desc.Name)
	}
	return b
}

// Indexed hints that the column is used in lookups.
func (b *Builder[T]) Indexed() *Builder[T] {
	b.desc.Indexed = true
	return b
}

// SchemaType overrides the default database type with a custom
// schema type (per dialect) for the field.
//
//	field.String("name", &e.Name).
//		SchemaType(map[string]string{
//			dialect.MySQL:    "varchar(64)",
//			dialect.Postgres: "varchar(64)",
//		})
func (b *Builder[T]) SchemaType(types map[string]string) *Builder[T] {
	b.desc.SchemaType = types
	return b
}

// Descriptor implements the field.Field interface by returning its descriptor.
func (b *Builder[T]) Descriptor() *Descriptor {
	return b.desc
}

// IsZero implements the Field interface.
func (b *Builder[T]) IsZero() bool {
	return reflect.ValueOf(b.ptr).Elem().IsZero()
}

// Interface implements the Field interface.
func (b *Builder[T]) Interface() any {
	return *b.ptr
}

// Value implements the Field interface.
func (b *Builder[T]) Value() (driver.Value, error) {
	if b.desc.Err != nil {
		return nil, b.desc.Err
	}
	if b.desc.Nillable && b.IsZero() {
		return nil, nil
	}
	if b.encode != nil {
		return b.encode(*b.ptr)
	}
	return any(*b.ptr), nil
}

// Scan implements the Field interface.
func (b *Builder[T]) Scan(src any) error {
	if b.desc.Err != nil {
		return b.desc.Err
	}
	if src == nil {
		var zero T
		*b.ptr = zero
		return nil
	}
	var err error
	if b.decode != nil {
		err = b.decode(src, b.ptr)
	} else {
		var n sql.Null[T]
		if err = n.Scan(src); err == nil {
			*b.ptr = n.V
		}
	}
	if err != nil {
		return fmt.Errorf("field %q: scan %T: %w", b.desc.Name, src, err)
	}
	return nil
}

func parseTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(TimeLayout, strings.TrimSpace(v))
	case []byte:
		return time.Parse(TimeLayout, strings.TrimSpace(string(v)))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", src)
	}
}

var (
	_ Field         = (*Builder[string])(nil)
	_ sql.Scanner   = (*Builder[string])(nil)
	_ driver.Valuer = (*Builder[string])(nil)
)
