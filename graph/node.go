package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/schema/field"
	"github.com/syssam/nodestore/tag"
)

// Reserved values of the scalar slots. Older stores used them to mean
// "unset"; they are rejected so they cannot be confused with NULL.
var (
	ReservedNumber = -math.MaxFloat64
	ReservedDate   = time.Time{}
	ReservedString = "\x00"
)

// Ref references a node by type and guid. The zero Ref is Root.
type Ref struct {
	Type tag.Tag
	Guid uuid.UUID
}

// Root is the parent of nodes that have no other parent.
var Root = Ref{}

// RefTo returns a reference to the node of type t with the given guid.
func RefTo(t tag.Tag, guid uuid.UUID) Ref {
	return Ref{Type: t, Guid: guid}
}

// IsRoot reports whether r references Root.
func (r Ref) IsRoot() bool {
	return r.Type.IsZero() && r.Guid == uuid.Nil
}

// String returns the "Type/guid" form of the reference.
func (r Ref) String() string {
	if r.IsRoot() {
		return "root"
	}
	return r.Type.String() + "/" + r.Guid.String()
}

// ParseRef parses the form returned by Ref.String. The type is resolved
// through types.
func ParseRef(types *tag.Registry, s string) (Ref, error) {
	if s == "root" {
		return Root, nil
	}
	typ, guid, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{}, fmt.Errorf("graph: invalid reference %q", s)
	}
	t, err := types.Parse(typ)
	if err != nil {
		return Ref{}, err
	}
	id, err := uuid.Parse(guid)
	if err != nil {
		return Ref{}, fmt.Errorf("graph: invalid reference %q: %w", s, err)
	}
	return Ref{Type: t, Guid: id}, nil
}

// Node is an item of the graph. Every node type is stored in a table
// of its own, named after its type tag.
type Node struct {
	Guid   uuid.UUID
	Type   tag.Tag
	Parent Ref
	Name   string

	NumberValue *float64
	DateValue   *time.Time
	StringValue *string
	BinaryValue []byte

	// Body is an opaque JSON document, BodyType names its Go type.
	Body     string
	BodyType string

	Order    int64
	SubTypes tag.Set
	Created  time.Time
	Modified time.Time
	Revision int64
	Debug    bool

	// Edges holds the neighborhood loaded by a resolving read.
	Edges NodeEdges
}

// NodeEdges holds the relations of a node loaded by GetByReference.
type NodeEdges struct {
	Children  []*Node
	Relations []*Node
	Parent    *Node
	// loadedTypes holds the information for reporting if a
	// type was loaded (or requested) in GetByReference.
	loadedTypes [3]bool
}

// ChildrenOrErr returns the Children value or an error if the edge
// was not loaded in GetByReference.
func (e NodeEdges) ChildrenOrErr() ([]*Node, error) {
	if e.loadedTypes[0] {
		return e.Children, nil
	}
	return nil, nodestore.NewNotLoadedError("children")
}

// RelationsOrErr returns the Relations value or an error if the edge
// was not loaded in GetByReference.
func (e NodeEdges) RelationsOrErr() ([]*Node, error) {
	if e.loadedTypes[1] {
		return e.Relations, nil
	}
	return nil, nodestore.NewNotLoadedError("relations")
}

// ParentOrErr returns the Parent value or an error if the edge was not
// loaded in GetByReference. A loaded edge of a root node is nil.
func (e NodeEdges) ParentOrErr() (*Node, error) {
	if e.loadedTypes[2] {
		return e.Parent, nil
	}
	return nil, nodestore.NewNotLoadedError("parent")
}

// NewNode returns a new node of type t with a random guid.
func NewNode(t tag.Tag) *Node {
	return &Node{Guid: uuid.New(), Type: t}
}

// Ref returns the reference of n.
func (n *Node) Ref() Ref {
	return Ref{Type: n.Type, Guid: n.Guid}
}

// IsNew reports whether n has not been saved yet.
func (n *Node) IsNew() bool {
	return n.Created.IsZero()
}

// tagColumn is the column type of tags and tag sets.
var tagColumn = map[string]string{
	dialect.Postgres: "text",
	dialect.SQLite:   "TEXT",
	dialect.MySQL:    "varchar(255)",
}

// Fields implements schema.Entity.
func (n *Node) Fields() []field.Field {
	return []field.Field{
		field.UUID("guid", &n.Guid).PrimaryKey(),
		field.Other("type", &n.Type).SchemaType(tagColumn),
		field.UUID("parent_guid", &n.Parent.Guid).Nillable().Indexed(),
		field.Other("parent_type", &n.Parent.Type).SchemaType(tagColumn).Nillable(),
		field.String("name", &n.Name).Nillable(),
		field.OptionalFloat64("number_value", &n.NumberValue),
		field.OptionalTime("date_value", &n.DateValue),
		field.OptionalString("string_value", &n.StringValue),
		field.Bytes("binary_value", &n.BinaryValue).Nillable(),
		field.Text("body", &n.Body).Nillable(),
		field.String("body_type", &n.BodyType).Nillable(),
		field.Int64("sort_order", &n.Order),
		field.Other("sub_types", &n.SubTypes).SchemaType(tagColumn).Nillable(),
		field.Time("created", &n.Created),
		field.Time("modified", &n.Modified),
		field.Int64("revision", &n.Revision),
		field.Bool("debug", &n.Debug),
	}
}

// SetNumberValue sets the number slot.
func (n *Node) SetNumberValue(v float64) error {
	if v == ReservedNumber {
		return &nodestore.RangeError{Field: "number_value", Value: v}
	}
	n.NumberValue = &v
	return nil
}

// SetDateValue sets the date slot. The zone offset of t is kept.
func (n *Node) SetDateValue(t time.Time) error {
	if t.Equal(ReservedDate) {
		return &nodestore.RangeError{Field: "date_value", Value: t}
	}
	n.DateValue = &t
	return nil
}

// SetStringValue sets the string slot.
func (n *Node) SetStringValue(s string) error {
	if s == ReservedString {
		return &nodestore.RangeError{Field: "string_value", Value: s}
	}
	n.StringValue = &s
	return nil
}

// SetBinaryValue sets the binary slot. A nil slice clears it.
func (n *Node) SetBinaryValue(b []byte) {
	n.BinaryValue = b
}

// ClearValues unsets every scalar slot.
func (n *Node) ClearValues() {
	n.NumberValue, n.DateValue, n.StringValue, n.BinaryValue = nil, nil, nil, nil
}

// checkValues rejects reserved values assigned to the slots directly.
func (n *Node) checkValues() error {
	switch {
	case n.NumberValue != nil && *n.NumberValue == ReservedNumber:
		return &nodestore.RangeError{Field: "number_value", Value: *n.NumberValue}
	case n.DateValue != nil && n.DateValue.Equal(ReservedDate):
		return &nodestore.RangeError{Field: "date_value", Value: *n.DateValue}
	case n.StringValue != nil && *n.StringValue == ReservedString:
		return &nodestore.RangeError{Field: "string_value", Value: *n.StringValue}
	}
	return nil
}

// SetBody stores v as the JSON body of n.
func (n *Node) SetBody(v any) error {
	if v == nil {
		n.Body, n.BodyType = "", ""
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("graph: encode body: %w", err)
	}
	n.Body, n.BodyType = string(b), bodyType(v)
	return nil
}

// DecodeBody decodes the JSON body of n into v.
func (n *Node) DecodeBody(v any) error {
	if n.Body == "" {
		return fmt.Errorf("graph: node %s has no body", n.Guid)
	}
	if err := json.Unmarshal([]byte(n.Body), v); err != nil {
		return fmt.Errorf("graph: decode %s body: %w", n.BodyType, err)
	}
	return nil
}

func bodyType(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
