package graph

import (
	"strings"

	"github.com/syssam/nodestore/tag"
)

// Resolving selects the neighborhood GetByReference loads along with a
// node. A nil *Resolving loads nothing. Resolving values are immutable
// and safe to share.
type Resolving struct {
	children  []tag.Tag
	relations []tag.Tag
	// allRelations is set when relations were requested without types.
	allRelations bool
	parent       bool
}

// ResolveOption configures a Resolving.
type ResolveOption func(*Resolving)

// ChildrenOfType loads the children of the given types, and their
// children of the same types, recursively.
func ChildrenOfType(types ...tag.Tag) ResolveOption {
	return func(r *Resolving) {
		r.children = append(r.children, types...)
	}
}

// RelationsOfType loads the relations of the given types, one level
// deep. Without types, relations of every type are loaded.
func RelationsOfType(types ...tag.Tag) ResolveOption {
	return func(r *Resolving) {
		if len(types) == 0 {
			r.allRelations = true
		}
		r.relations = append(r.relations, types...)
	}
}

// WithParent loads the parent node.
func WithParent() ResolveOption {
	return func(r *Resolving) {
		r.parent = true
	}
}

// Resolve builds a Resolving from options.
func Resolve(opts ...ResolveOption) *Resolving {
	r := &Resolving{}
	for _, opt := range opts {
		opt(r)
	}
	r.children = dedup(r.children)
	r.relations = dedup(r.relations)
	if r.allRelations {
		r.relations = nil
	}
	return r
}

// IsZero reports whether r requests no expansion.
func (r *Resolving) IsZero() bool {
	return r == nil || (len(r.children) == 0 && len(r.relations) == 0 && !r.allRelations && !r.parent)
}

// Children returns the requested child types.
func (r *Resolving) Children() []tag.Tag {
	if r == nil {
		return nil
	}
	return append([]tag.Tag(nil), r.children...)
}

// Relations returns the requested relation types, and whether relations
// were requested at all.
func (r *Resolving) Relations() ([]tag.Tag, bool) {
	if r == nil {
		return nil, false
	}
	return append([]tag.Tag(nil), r.relations...), r.allRelations || len(r.relations) > 0
}

// Parent reports whether the parent node is requested.
func (r *Resolving) Parent() bool {
	return r != nil && r.parent
}

// String describes r for logging.
func (r *Resolving) String() string {
	if r.IsZero() {
		return "none"
	}
	var parts []string
	if len(r.children) > 0 {
		parts = append(parts, "children("+join(r.children)+")")
	}
	switch {
	case r.allRelations:
		parts = append(parts, "relations(*)")
	case len(r.relations) > 0:
		parts = append(parts, "relations("+join(r.relations)+")")
	}
	if r.parent {
		parts = append(parts, "parent")
	}
	return strings.Join(parts, " ")
}

func join(tags []tag.Tag) string {
	s := make([]string, len(tags))
	for i, t := range tags {
		s[i] = t.String()
	}
	return strings.Join(s, ",")
}

func dedup(tags []tag.Tag) []tag.Tag {
	if len(tags) == 0 {
		return nil
	}
	set := tag.NewSet(tags...)
	return set.Tags()
}
