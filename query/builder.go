package query

import (
	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
)

// Builder accumulates a query specification through chained calls. Every
// method returns the same builder, so callers write
//
//	spec, err := query.NewBuilder(users).
//	    Filter(domain.C("age", domain.OpGte, 18)).
//	    OrderBy("age", query.Desc).
//	    Limit(20).
//	    Build()
//
// Accumulation rules differ by method and the asymmetry is deliberate:
// Filter and OrderBy are cumulative (each call appends), while Select,
// Limit and Offset are last-write-wins (each call replaces). Argument
// errors are recorded on the builder and surfaced by Build; the first
// recorded error wins.
//
// A builder is not safe for concurrent use; each caller owns its own.
type Builder struct {
	spec Spec
	err  error
}

// NewBuilder starts a specification against a model.
func NewBuilder(m *model.Model) *Builder {
	return &Builder{spec: Spec{Model: m}}
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Filter appends domain terms to the accumulated filter sequence.
// Successive calls concatenate, which normalization reads as implicit
// conjunction: filtering twice narrows, never replaces.
func (b *Builder) Filter(terms ...domain.Term) *Builder {
	b.spec.Filter = append(b.spec.Filter, terms...)
	return b
}

// OrderBy appends a sort key. The first call sets the primary key;
// later calls add tiebreakers in order.
func (b *Builder) OrderBy(field string, dir Direction) *Builder {
	b.spec.OrderBy = append(b.spec.OrderBy, Order{Field: field, Dir: dir})
	return b
}

// Limit caps the result set. Last call wins. A zero limit means an empty
// result set, not "no limit". Negative values record InvalidRangeError.
func (b *Builder) Limit(n int64) *Builder {
	if n < 0 {
		b.setErr(&InvalidRangeError{What: "limit", Value: n})
		return b
	}
	b.spec.Limit = &n
	return b
}

// Offset skips leading rows. Last call wins; offset without limit is
// legal. Negative values record InvalidRangeError.
func (b *Builder) Offset(n int64) *Builder {
	if n < 0 {
		b.setErr(&InvalidRangeError{What: "offset", Value: n})
		return b
	}
	b.spec.Offset = &n
	return b
}

// Select sets the projection. Unlike Filter, this replaces any prior
// projection: the last call wins.
func (b *Builder) Select(fields ...string) *Builder {
	b.spec.Projection = append([]string(nil), fields...)
	return b
}

// GroupBy opens an aggregate operation scoped to its own sub-builder.
// Metrics and having accumulate there; End folds the operation back into
// this builder.
func (b *Builder) GroupBy(fields ...string) *GroupBuilder {
	return &GroupBuilder{
		parent: b,
		op:     &AggregateOp{GroupBy: append([]string(nil), fields...)},
	}
}

// Join opens a join operation against a target model.
func (b *Builder) Join(target *model.Model, localField, foreignField string) *JoinBuilder {
	return &JoinBuilder{
		parent: b,
		op: &JoinOp{
			Target:       target,
			LocalField:   localField,
			ForeignField: foreignField,
			Kind:         JoinLeft,
		},
	}
}

// Window opens a window operation computing fn under the given alias.
func (b *Builder) Window(fn WindowFunc, alias string) *WindowBuilder {
	return &WindowBuilder{
		parent: b,
		op:     &WindowOp{Fn: fn, Alias: alias},
	}
}

// Err returns the first recorded builder error without building.
func (b *Builder) Err() error { return b.err }

// Build validates the accumulated state and produces an immutable Spec
// snapshot. Further builder calls never affect a returned snapshot.
// Validation is eager: malformed filters, unknown projection or order
// fields, and inconsistent operations all fail here, before any I/O.
func (b *Builder) Build() (*Spec, error) {
	if b.err != nil {
		return nil, b.err
	}
	if _, err := b.spec.NormalizedFilter(); err != nil {
		return nil, err
	}
	for _, name := range b.spec.Projection {
		if _, ok := b.spec.Model.Lookup(name); !ok {
			return nil, compileErr("spec", "select references unknown field %q", name)
		}
	}
	for _, ord := range b.spec.OrderBy {
		if _, ok := b.spec.Model.Lookup(ord.Field); !ok {
			return nil, compileErr("spec", "order by unknown field %q", ord.Field)
		}
	}
	for _, op := range b.spec.Operations {
		if err := op.Validate(b.spec.Model); err != nil {
			return nil, err
		}
	}
	return b.spec.clone(), nil
}

// GroupBuilder accumulates one aggregate operation.
type GroupBuilder struct {
	parent *Builder
	op     *AggregateOp
}

// Metric requests fn over a source field, emitted under alias.
func (g *GroupBuilder) Metric(fn MetricFunc, field, alias string) *GroupBuilder {
	g.op.Metrics = append(g.op.Metrics, Metric{Fn: fn, Field: field, Alias: alias})
	return g
}

// Count requests a row count per group under alias.
func (g *GroupBuilder) Count(alias string) *GroupBuilder {
	return g.Metric(MetricCount, "*", alias)
}

// Having appends domain terms filtering the aggregated rows. The domain
// is written over metric aliases.
func (g *GroupBuilder) Having(terms ...domain.Term) *GroupBuilder {
	g.op.Having = append(g.op.Having, terms...)
	return g
}

// End validates the operation and folds it back into the parent builder.
func (g *GroupBuilder) End() *Builder {
	if err := g.op.Validate(g.parent.spec.Model); err != nil {
		g.parent.setErr(err)
		return g.parent
	}
	g.parent.spec.Operations = append(g.parent.spec.Operations, g.op)
	return g.parent
}

// JoinBuilder accumulates one join operation.
type JoinBuilder struct {
	parent *Builder
	op     *JoinOp
}

// Inner drops base rows whose joined set is empty.
func (j *JoinBuilder) Inner() *JoinBuilder {
	j.op.Kind = JoinInner
	return j
}

// Left keeps base rows with an empty joined set. This is the default.
func (j *JoinBuilder) Left() *JoinBuilder {
	j.op.Kind = JoinLeft
	return j
}

// Select restricts which foreign fields survive the join.
func (j *JoinBuilder) Select(fields ...string) *JoinBuilder {
	j.op.Select = append([]string(nil), fields...)
	return j
}

// End validates the operation and folds it back into the parent builder.
func (j *JoinBuilder) End() *Builder {
	if err := j.op.Validate(j.parent.spec.Model); err != nil {
		j.parent.setErr(err)
		return j.parent
	}
	j.parent.spec.Operations = append(j.parent.spec.Operations, j.op)
	return j.parent
}

// WindowBuilder accumulates one window operation.
type WindowBuilder struct {
	parent *Builder
	op     *WindowOp
}

// PartitionBy sets the partition key fields.
func (w *WindowBuilder) PartitionBy(fields ...string) *WindowBuilder {
	w.op.PartitionBy = append(w.op.PartitionBy, fields...)
	return w
}

// OrderBy appends an in-partition sort key.
func (w *WindowBuilder) OrderBy(field string, dir Direction) *WindowBuilder {
	w.op.OrderBy = append(w.op.OrderBy, Order{Field: field, Dir: dir})
	return w
}

// Source sets the field an aggregate-style function reads. Ranking
// functions ignore it.
func (w *WindowBuilder) Source(field string) *WindowBuilder {
	w.op.Field = field
	return w
}

// Frame bounds the moving aggregate to the inclusive [start, end] window
// relative to the current row. Negative start reaches rows before it.
func (w *WindowBuilder) Frame(unit FrameUnit, start, end int64) *WindowBuilder {
	w.op.Frame = &Frame{Unit: unit, Start: start, End: end}
	return w
}

// End validates the operation and folds it back into the parent builder.
func (w *WindowBuilder) End() *Builder {
	if err := w.op.Validate(w.parent.spec.Model); err != nil {
		w.parent.setErr(err)
		return w.parent
	}
	w.parent.spec.Operations = append(w.parent.spec.Operations, w.op)
	return w.parent
}
