package tag

import (
	"sort"
	"strings"
)

// Set is an unordered set of tags. Membership compares tags
// case-insensitively. The zero Set is empty and ready to use.
type Set struct {
	tags map[string]Tag
}

// NewSet returns a set holding the given tags.
func NewSet(tags ...Tag) Set {
	var s Set
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// Add adds t to the set. Adding a tag already present is a no-op.
func (s *Set) Add(t Tag) {
	if s.tags == nil {
		s.tags = make(map[string]Tag)
	}
	if _, ok := s.tags[t.key()]; !ok {
		s.tags[t.key()] = t
	}
}

// Contains reports whether t is in the set.
func (s Set) Contains(t Tag) bool {
	_, ok := s.tags[t.key()]
	return ok
}

// Len returns the number of tags in the set.
func (s Set) Len() int { return len(s.tags) }

// Tags returns the tags of the set sorted by their string form.
func (s Set) Tags() []Tag {
	keys := make([]string, 0, len(s.tags))
	for k := range s.tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]Tag, len(keys))
	for i, k := range keys {
		tags[i] = s.tags[k]
	}
	return tags
}

// Equal reports whether s and u hold the same tags.
func (s Set) Equal(u Set) bool {
	if s.Len() != u.Len() {
		return false
	}
	for k := range s.tags {
		if _, ok := u.tags[k]; !ok {
			return false
		}
	}
	return true
}

// Serialize returns the "A=b&C=d" form of the set. Tags are sorted, so
// equal sets serialize identically.
func (s Set) Serialize() string {
	tags := s.Tags()
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, "&")
}

// String implements fmt.Stringer.
func (s Set) String() string { return s.Serialize() }
