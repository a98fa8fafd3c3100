package tag

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
)

// Value implements driver.Valuer. The zero Tag is stored as NULL.
func (t Tag) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.String(), nil
}

// Scan implements sql.Scanner. A scanned tag carries the stored spelling
// and no ordinal until it is resolved with Registry.Canonical.
func (t *Tag) Scan(src any) error {
	s, err := scanString(src)
	if err != nil || s == "" {
		*t = Tag{}
		return err
	}
	def, value, ok := strings.Cut(s, "=")
	if !ok {
		return &Error{Value: s, Err: ErrInvalidName}
	}
	*t = Tag{Definition: def, Case: value}
	return nil
}

// Value implements driver.Valuer. The empty Set is stored as NULL.
func (s Set) Value() (driver.Value, error) {
	if s.Len() == 0 {
		return nil, nil
	}
	return s.Serialize(), nil
}

// Scan implements sql.Scanner.
func (s *Set) Scan(src any) error {
	str, err := scanString(src)
	*s = Set{}
	if err != nil || str == "" {
		return err
	}
	for _, part := range strings.Split(str, "&") {
		var t Tag
		if err := t.Scan(part); err != nil {
			return err
		}
		s.Add(t)
	}
	return nil
}

// Canonical resolves a tag read from storage to its registered form.
func (r *Registry) Canonical(t Tag) (Tag, error) {
	if t.IsZero() {
		return t, nil
	}
	return r.Lookup(t.Definition, t.Case)
}

// CanonicalSet resolves every tag of a set read from storage.
func (r *Registry) CanonicalSet(s Set) (Set, error) {
	var out Set
	for _, t := range s.Tags() {
		c, err := r.Canonical(t)
		if err != nil {
			return Set{}, err
		}
		out.Add(c)
	}
	return out, nil
}

func scanString(src any) (string, error) {
	var n sql.NullString
	if err := n.Scan(src); err != nil {
		return "", fmt.Errorf("tag: scan %T: %w", src, err)
	}
	return strings.TrimSpace(n.String), nil
}

var (
	_ driver.Valuer = Tag{}
	_ sql.Scanner   = (*Tag)(nil)
	_ driver.Valuer = Set{}
	_ sql.Scanner   = (*Set)(nil)
)
