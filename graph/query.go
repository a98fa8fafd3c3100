package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/syssam/nodestore/schema/field"
	"github.com/syssam/nodestore/tag"
)

// Range is an inclusive range over a value slot. A missing bound is
// open.
type Range[T any] struct {
	min, max       T
	hasMin, hasMax bool
}

// Between returns the range [lo, hi].
func Between[T any](lo, hi T) Range[T] {
	return Range[T]{min: lo, max: hi, hasMin: true, hasMax: true}
}

// AtLeast returns the range [lo, ∞).
func AtLeast[T any](lo T) Range[T] {
	return Range[T]{min: lo, hasMin: true}
}

// AtMost returns the range (-∞, hi].
func AtMost[T any](hi T) Range[T] {
	return Range[T]{max: hi, hasMax: true}
}

// Equals returns the range [v, v].
func Equals[T any](v T) Range[T] {
	return Between(v, v)
}

// Any returns the unbounded range. It matches every node with the slot
// set.
func Any[T any]() Range[T] {
	return Range[T]{}
}

// QueryByStringValue returns the nodes of type t whose string slot is
// within r.
func (s *Store) QueryByStringValue(ctx context.Context, t tag.Tag, r Range[string]) ([]*Node, error) {
	return s.queryRange(ctx, t, "string_value", bounds(r, func(v string) any { return v }))
}

// QueryByNumberValue returns the nodes of type t whose number slot is
// within r.
func (s *Store) QueryByNumberValue(ctx context.Context, t tag.Tag, r Range[float64]) ([]*Node, error) {
	return s.queryRange(ctx, t, "number_value", bounds(r, func(v float64) any { return v }))
}

// dateSlack bounds how far the wall clock of a stored date can be from
// UTC.
const dateSlack = 14 * time.Hour

// QueryByDateTimeValue returns the nodes of type t whose date slot is
// within r. Dates are stored as text with their zone offset, so the
// database narrows by wall clock and the exact instant is compared here.
func (s *Store) QueryByDateTimeValue(ctx context.Context, t tag.Tag, r Range[time.Time]) ([]*Node, error) {
	wide := Range[time.Time]{hasMin: r.hasMin, hasMax: r.hasMax}
	if r.hasMin {
		wide.min = r.min.UTC().Add(-dateSlack)
	}
	if r.hasMax {
		wide.max = r.max.UTC().Add(dateSlack)
	}
	nodes, err := s.queryRange(ctx, t, "date_value", bounds(wide, func(v time.Time) any {
		return v.Format(field.TimeLayout)
	}))
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		d := *n.DateValue
		if (r.hasMin && d.Before(r.min)) || (r.hasMax && d.After(r.max)) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

type bound struct {
	op  string
	arg any
}

func bounds[T any](r Range[T], arg func(T) any) []bound {
	var b []bound
	if r.hasMin {
		b = append(b, bound{op: ">=", arg: arg(r.min)})
	}
	if r.hasMax {
		b = append(b, bound{op: "<=", arg: arg(r.max)})
	}
	return b
}

func (s *Store) queryRange(ctx context.Context, t tag.Tag, column string, bs []bound) (_ []*Node, err error) {
	ctx, end := s.region(ctx, "graph.query", "type", t.String(), "column", column)
	defer func() { end(err) }()
	table, err := s.Table(ctx, t)
	if err != nil {
		return nil, err
	}
	col := s.quote(column)
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT * FROM %s WHERE %s IS NOT NULL", table.Quoted(s.mapper.Dialect()), col)
	for _, bd := range bs {
		fmt.Fprintf(&b, " AND %s %s @%d", col, bd.op, len(args))
		args = append(args, bd.arg)
	}
	fmt.Fprintf(&b, " ORDER BY %s, %s", s.quote("sort_order"), s.quote("guid"))
	return s.query(ctx, b.String(), args...)
}
