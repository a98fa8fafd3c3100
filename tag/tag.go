// Package tag registers enumerated domain types and turns their cases
// into validated type tags and tag sets.
//
// A definition names an integer enum type and spells every case:
//
//	type ItemType int
//
//	const (
//	    Folder ItemType = iota
//	    Document
//	)
//
//	reg := tag.NewRegistry()
//	err := tag.Register(reg, tag.Definition[ItemType]{
//	    Name:   "ItemType",
//	    Values: map[ItemType]string{Folder: "Folder", Document: "Document"},
//	})
//	t, _ := tag.Of(reg, Folder)     // ItemType=Folder
//	t, _ = reg.Parse("itemtype=folder") // same tag
//
// Names and values are restricted to ASCII letters and digits, since
// '=' and '&' separate them in the serialized forms.
package tag

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Registry errors.
var (
	ErrMissingMetadata   = errors.New("tag: missing metadata")
	ErrDuplicateValue    = errors.New("tag: duplicate value")
	ErrAlreadyRegistered = errors.New("tag: definition already registered")
	ErrInvalidName       = errors.New("tag: invalid name")
	ErrUnknown           = errors.New("tag: unknown tag")
)

// Error describes a registration or lookup failure.
type Error struct {
	Definition string
	Value      string
	Err        error
}

// Error returns the error string.
func (e *Error) Error() string {
	switch {
	case e.Value != "":
		return fmt.Sprintf("%v: %s=%s", e.Err, e.Definition, e.Value)
	case e.Definition != "":
		return fmt.Sprintf("%v: %s", e.Err, e.Definition)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the sentinel error.
func (e *Error) Unwrap() error { return e.Err }

var validName = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Tag identifies one case of a registered definition.
type Tag struct {
	Definition string
	Case       string
	Ordinal    int
}

// String returns the "Definition=Case" form of the tag.
func (t Tag) String() string {
	return t.Definition + "=" + t.Case
}

// IsZero reports whether t is the zero Tag.
func (t Tag) IsZero() bool {
	return t.Definition == "" && t.Case == ""
}

// Equal reports whether t and u name the same case. Values compare
// case-insensitively.
func (t Tag) Equal(u Tag) bool {
	return t.key() == u.key()
}

func (t Tag) key() string {
	return fold(t.Definition) + "=" + fold(t.Case)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Definition declares an enum type E and the value of each of its cases.
type Definition[E ~int] struct {
	Name   string
	Values map[E]string
}

type definition struct {
	name    string
	typ     reflect.Type
	ordinal map[int]Tag
	value   map[string]Tag
}

// Registry holds registered definitions. Registration is append-only.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*definition
	byType map[reflect.Type]*definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*definition),
		byType: make(map[reflect.Type]*definition),
	}
}

// Register adds the definition of enum type E to r.
func Register[E ~int](r *Registry, def Definition[E]) error {
	values := make(map[int]string, len(def.Values))
	for c, v := range def.Values {
		values[int(c)] = v
	}
	return r.register(def.Name, reflect.TypeFor[E](), values)
}

// RegisterValues adds a definition that is not bound to a Go enum type,
// such as one read from configuration. The ordinal of each value is its
// position. Its tags are reachable through Lookup and Parse but not Of.
func RegisterValues(r *Registry, name string, values ...string) error {
	m := make(map[int]string, len(values))
	for i, v := range values {
		m[i] = v
	}
	return r.register(name, nil, m)
}

func (r *Registry) register(name string, typ reflect.Type, values map[int]string) error {
	if name == "" || len(values) == 0 {
		return &Error{Definition: name, Err: ErrMissingMetadata}
	}
	if !validName.MatchString(name) {
		return &Error{Definition: name, Err: ErrInvalidName}
	}
	d := &definition{
		name:    name,
		typ:     typ,
		ordinal: make(map[int]Tag, len(values)),
		value:   make(map[string]Tag, len(values)),
	}
	// Sorted so the reported duplicate does not depend on map order.
	cases := make([]int, 0, len(values))
	for c := range values {
		cases = append(cases, c)
	}
	sort.Ints(cases)
	for _, c := range cases {
		v := values[c]
		switch {
		case v == "":
			return &Error{Definition: name, Value: fmt.Sprint(c), Err: ErrMissingMetadata}
		case !validName.MatchString(v):
			return &Error{Definition: name, Value: v, Err: ErrInvalidName}
		}
		if _, ok := d.value[fold(v)]; ok {
			return &Error{Definition: name, Value: v, Err: ErrDuplicateValue}
		}
		t := Tag{Definition: name, Case: v, Ordinal: c}
		d.value[fold(v)] = t
		d.ordinal[c] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[fold(name)]; ok {
		return &Error{Definition: name, Err: ErrAlreadyRegistered}
	}
	if typ != nil {
		if _, ok := r.byType[typ]; ok {
			return &Error{Definition: name, Err: ErrAlreadyRegistered}
		}
		r.byType[typ] = d
	}
	r.byName[fold(name)] = d
	return nil
}

// Of returns the tag of an enum case.
func Of[E ~int](r *Registry, v E) (Tag, error) {
	typ := reflect.TypeFor[E]()
	r.mu.RLock()
	d, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return Tag{}, &Error{Definition: typ.String(), Err: ErrUnknown}
	}
	t, ok := d.ordinal[int(v)]
	if !ok {
		return Tag{}, &Error{Definition: d.name, Value: fmt.Sprint(int(v)), Err: ErrUnknown}
	}
	return t, nil
}

// SetOf returns the singleton set of an enum case.
func SetOf[E ~int](r *Registry, v E) (Set, error) {
	t, err := Of(r, v)
	if err != nil {
		return Set{}, err
	}
	return NewSet(t), nil
}

// Lookup returns the registered tag of a definition and value, compared
// case-insensitively. The returned tag carries the registered spelling.
func (r *Registry) Lookup(definition, value string) (Tag, error) {
	r.mu.RLock()
	d, ok := r.byName[fold(definition)]
	r.mu.RUnlock()
	if !ok {
		return Tag{}, &Error{Definition: definition, Err: ErrUnknown}
	}
	t, ok := d.value[fold(value)]
	if !ok {
		return Tag{}, &Error{Definition: d.name, Value: value, Err: ErrUnknown}
	}
	return t, nil
}

// Parse parses the "Definition=Value" form of a tag.
func (r *Registry) Parse(s string) (Tag, error) {
	def, value, ok := strings.Cut(s, "=")
	if !ok || !validName.MatchString(def) || !validName.MatchString(value) {
		return Tag{}, &Error{Value: s, Err: ErrInvalidName}
	}
	return r.Lookup(def, value)
}

// ParseSet parses the "A=b&C=d" form of a set. The empty string is the
// empty set.
func (r *Registry) ParseSet(s string) (Set, error) {
	var set Set
	if s == "" {
		return set, nil
	}
	for _, part := range strings.Split(s, "&") {
		t, err := r.Parse(part)
		if err != nil {
			return Set{}, err
		}
		set.Add(t)
	}
	return set, nil
}

// Definitions returns the registered definition names, sorted.
func (r *Registry) Definitions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for _, d := range r.byName {
		names = append(names, d.name)
	}
	sort.Strings(names)
	return names
}

// Tags returns the tags of a definition ordered by ordinal.
func (r *Registry) Tags(definition string) ([]Tag, error) {
	r.mu.RLock()
	d, ok := r.byName[fold(definition)]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Definition: definition, Err: ErrUnknown}
	}
	tags := make([]Tag, 0, len(d.ordinal))
	for _, t := range d.ordinal {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Ordinal < tags[j].Ordinal })
	return tags, nil
}
