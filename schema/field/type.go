package field

import (
	"fmt"

	"github.com/syssam/nodestore/dialect"
)

// A Type represents a field type.
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt32
	TypeInt64
	TypeFloat64
	TypeString
	TypeText
	TypeBytes
	TypeUUID
	TypeTime
	TypeOther
	endTypes
)

var (
	typeNames = [...]string{
		TypeInvalid: "invalid",
		TypeBool:    "bool",
		TypeInt32:   "int32",
		TypeInt64:   "int64",
		TypeFloat64: "float64",
		TypeString:  "string",
		TypeText:    "text",
		TypeBytes:   "[]byte",
		TypeUUID:    "uuid.UUID",
		TypeTime:    "time.Time",
		TypeOther:   "other",
	}
	constNames = [...]string{
		TypeBool:    "TypeBool",
		TypeInt32:   "TypeInt32",
		TypeInt64:   "TypeInt64",
		TypeFloat64: "TypeFloat64",
		TypeString:  "TypeString",
		TypeText:    "TypeText",
		TypeBytes:   "TypeBytes",
		TypeUUID:    "TypeUUID",
		TypeTime:    "TypeTime",
		TypeOther:   "TypeOther",
	}
	// sqlTypes holds the column type of every built-in field type per dialect.
	sqlTypes = map[string][endTypes]string{
		dialect.Postgres: {
			TypeBool:    "boolean",
			TypeInt32:   "integer",
			TypeInt64:   "bigint",
			TypeFloat64: "double precision",
			TypeString:  "text",
			TypeText:    "text",
			TypeBytes:   "bytea",
			TypeUUID:    "uuid",
			TypeTime:    "char(33)",
		},
		dialect.SQLite: {
			TypeBool:    "BOOLEAN",
			TypeInt32:   "INTEGER",
			TypeInt64:   "INTEGER",
			TypeFloat64: "REAL",
			TypeString:  "TEXT",
			TypeText:    "TEXT",
			TypeBytes:   "BLOB",
			TypeUUID:    "TEXT",
			TypeTime:    "TEXT",
		},
		dialect.MySQL: {
			TypeBool:    "boolean",
			TypeInt32:   "int",
			TypeInt64:   "bigint",
			TypeFloat64: "double",
			TypeString:  "varchar(255)",
			TypeText:    "longtext",
			TypeBytes:   "longblob",
			TypeUUID:    "char(36)",
			TypeTime:    "char(33)",
		},
	}
)

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeFloat64
}

// Valid reports if the given type if known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// ConstName returns the constant name of an info type.
// It's used by tools for generating the Type constant.
func (t Type) ConstName() string {
	if !t.Valid() {
		return typeNames[TypeInvalid]
	}
	return constNames[t]
}

// SQLType returns the column type of the field for the given dialect.
// An explicit SchemaType entry wins over the built-in mapping.
func (d *Descriptor) SQLType(name string) (string, error) {
	if t, ok := d.SchemaType[name]; ok {
		return t, nil
	}
	types, ok := sqlTypes[name]
	if !ok {
		return "", fmt.Errorf("field %q: unsupported dialect %q", d.Name, name)
	}
	if !d.Info.Type.Valid() || types[d.Info.Type] == "" {
		return "", fmt.Errorf("field %q: no %s column type for %s", d.Name, name, d.Info.Type)
	}
	if d.Increment {
		switch name {
		case dialect.Postgres:
			return "bigserial", nil
		case dialect.MySQL:
			return "bigint AUTO_INCREMENT", nil
		}
	}
	return types[d.Info.Type], nil
}
