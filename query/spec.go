// Package query exposes the caller-facing surface of the engine: the
// fluent builder that accumulates a declarative query specification, the
// backend contracts a specification compiles and executes through, and the
// streaming result mapper that turns raw documents into typed records.
package query

import (
	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
)

// Direction orders a sort key.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// String renders the direction for diagnostics.
func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Order is one sort key of a specification.
type Order struct {
	Field string
	Dir   Direction
}

// Spec is an immutable snapshot of a built query: which records (filter),
// in what order (order by, offset, limit), with what shape (projection and
// operations). Builders produce one; compilers and the executor only read
// it.
type Spec struct {
	// Model supplies field metadata and the target collection.
	Model *model.Model

	// Filter is the accumulated domain term sequence. Successive builder
	// Filter calls concatenate here, which the normalizer reads as
	// implicit conjunction.
	Filter domain.Seq

	// Projection is the selected field set; nil means every declared
	// field.
	Projection []string

	// OrderBy lists sort keys, primary first.
	OrderBy []Order

	// Limit caps the result set. Nil means no cap; zero means an empty
	// result set.
	Limit *int64

	// Offset skips leading rows. Offset without Limit is legal.
	Offset *int64

	// Operations are the higher-level stages (aggregate, join, window) in
	// declaration order.
	Operations []Operation
}

// NormalizedFilter normalizes the accumulated filter sequence into an
// expression tree.
func (s *Spec) NormalizedFilter() (domain.Expr, error) {
	return domain.Normalize(s.Filter)
}

// HasAggregate reports whether any operation reshapes rows into groups.
func (s *Spec) HasAggregate() bool {
	for _, op := range s.Operations {
		if _, ok := op.(*AggregateOp); ok {
			return true
		}
	}
	return false
}

// clone deep-copies the snapshot so later builder mutation cannot reach a
// previously built Spec.
func (s *Spec) clone() *Spec {
	out := &Spec{Model: s.Model}
	out.Filter = append(domain.Seq(nil), s.Filter...)
	out.Projection = append([]string(nil), s.Projection...)
	out.OrderBy = append([]Order(nil), s.OrderBy...)
	if s.Limit != nil {
		v := *s.Limit
		out.Limit = &v
	}
	if s.Offset != nil {
		v := *s.Offset
		out.Offset = &v
	}
	for _, op := range s.Operations {
		out.Operations = append(out.Operations, op.cloneOp())
	}
	return out
}

// OutputField describes one field of the result shape: its caller-visible
// name, the document key it arrives under, and its declared metadata when
// the field comes from the model (operation aliases have none).
type OutputField struct {
	Name   string
	Key    string
	Decl   *model.Field // nil for operation-produced fields
	IsList bool         // joined document sets
}

// OutputSchema computes the result shape the mapper should expect, walking
// the base projection and then each operation in declaration order the same
// way the pipeline reshapes documents.
func (s *Spec) OutputSchema() []OutputField {
	var out []OutputField
	if s.Projection != nil {
		for _, name := range s.Projection {
			if f, ok := s.Model.Lookup(name); ok {
				decl := f
				out = append(out, OutputField{Name: name, Key: f.StorageName(), Decl: &decl})
			}
		}
	} else {
		for _, f := range s.Model.Fields {
			decl := f
			out = append(out, OutputField{Name: f.Name, Key: f.StorageName(), Decl: &decl})
		}
	}

	for _, op := range s.Operations {
		switch o := op.(type) {
		case *AggregateOp:
			// Grouping replaces the row shape entirely.
			out = out[:0]
			for _, name := range o.GroupBy {
				if f, ok := s.Model.Lookup(name); ok {
					decl := f
					out = append(out, OutputField{Name: name, Key: name, Decl: &decl})
				}
			}
			for _, m := range o.Metrics {
				out = append(out, OutputField{Name: m.Alias, Key: m.Alias})
			}
		case *JoinOp:
			out = append(out, OutputField{Name: o.Target.Name, Key: o.Target.Name, IsList: true})
		case *WindowOp:
			out = append(out, OutputField{Name: o.Alias, Key: o.Alias})
		}
	}
	return out
}
