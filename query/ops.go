package query

import (
	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
)

// Operation is a higher-level query feature compiled into one or more
// pipeline stages.
//
// This is a sealed interface - only types in this package implement it.
// Backend compilers switch exhaustively over the variants; a new operation
// kind means a new variant here and a new compiler branch there, never an
// open-ended stage dictionary.
type Operation interface {
	operation() // Marker method - seals interface to this package

	// Validate checks internal consistency against the base model.
	// Called at operation-finalize and Build time, before any I/O.
	Validate(m *model.Model) error

	cloneOp() Operation
}

// MetricFunc is an aggregate accumulator function.
type MetricFunc string

const (
	MetricCount MetricFunc = "count"
	MetricSum   MetricFunc = "sum"
	MetricAvg   MetricFunc = "avg"
	MetricMin   MetricFunc = "min"
	MetricMax   MetricFunc = "max"
)

// Valid reports whether fn is a known metric function.
func (fn MetricFunc) Valid() bool {
	switch fn {
	case MetricCount, MetricSum, MetricAvg, MetricMin, MetricMax:
		return true
	}
	return false
}

// Metric is one requested accumulator: fn over a source field, emitted
// under an alias. Count takes no source; "*" is the conventional
// placeholder.
type Metric struct {
	Fn    MetricFunc
	Field string
	Alias string
}

// AggregateOp groups rows by the GroupBy fields and computes one output
// row per group carrying the requested metrics. An empty GroupBy computes
// a single global row. Having filters groups; its domain is written over
// the metric aliases.
type AggregateOp struct {
	GroupBy []string
	Metrics []Metric
	Having  domain.Seq
}

func (*AggregateOp) operation() {}

func (o *AggregateOp) cloneOp() Operation {
	cp := &AggregateOp{
		GroupBy: append([]string(nil), o.GroupBy...),
		Metrics: append([]Metric(nil), o.Metrics...),
		Having:  append(domain.Seq(nil), o.Having...),
	}
	return cp
}

// Validate checks group fields, metric shapes and the having namespace.
func (o *AggregateOp) Validate(m *model.Model) error {
	for _, g := range o.GroupBy {
		if _, ok := m.Lookup(g); !ok {
			return compileErr("aggregate", "unknown group field %q", g)
		}
	}
	if len(o.Metrics) == 0 {
		return compileErr("aggregate", "no metrics requested")
	}
	aliases := make(map[string]bool, len(o.Metrics))
	for _, mt := range o.Metrics {
		if !mt.Fn.Valid() {
			return compileErr("aggregate", "unknown metric function %q", mt.Fn)
		}
		if mt.Alias == "" {
			return compileErr("aggregate", "metric %s without an output alias", mt.Fn)
		}
		if aliases[mt.Alias] {
			return compileErr("aggregate", "duplicate metric alias %q", mt.Alias)
		}
		aliases[mt.Alias] = true
		if mt.Fn != MetricCount {
			if _, ok := m.Lookup(mt.Field); !ok {
				return compileErr("aggregate", "metric %s over unknown field %q", mt.Fn, mt.Field)
			}
		}
	}
	if len(o.Having) > 0 {
		expr, err := domain.NormalizeNonEmpty(o.Having)
		if err != nil {
			return err
		}
		for _, f := range domain.Fields(expr) {
			if !aliases[f] {
				return compileErr("aggregate", "having references %q, which is not a metric alias", f)
			}
		}
	}
	return nil
}

// JoinKind selects join semantics.
type JoinKind string

const (
	// JoinInner drops base rows whose joined set is empty.
	JoinInner JoinKind = "inner"
	// JoinLeft keeps base rows with an empty joined set.
	JoinLeft JoinKind = "left"
)

// JoinOp matches LocalField against ForeignField in the target collection
// and attaches the matched documents as a list under the target model's
// name. Select optionally restricts which foreign fields survive.
type JoinOp struct {
	Target       *model.Model
	LocalField   string
	ForeignField string
	Kind         JoinKind
	Select       []string
}

func (*JoinOp) operation() {}

func (o *JoinOp) cloneOp() Operation {
	cp := *o
	cp.Select = append([]string(nil), o.Select...)
	return &cp
}

// Validate checks both sides of the join against their models.
func (o *JoinOp) Validate(m *model.Model) error {
	if o.Target == nil {
		return compileErr("join", "no target model")
	}
	if o.Kind != JoinInner && o.Kind != JoinLeft {
		return compileErr("join", "unknown join kind %q", o.Kind)
	}
	if _, ok := m.Lookup(o.LocalField); !ok {
		return compileErr("join", "unknown local field %q", o.LocalField)
	}
	if _, ok := o.Target.Lookup(o.ForeignField); !ok {
		return compileErr("join", "unknown foreign field %q on %s", o.ForeignField, o.Target.Name)
	}
	for _, sel := range o.Select {
		if _, ok := o.Target.Lookup(sel); !ok {
			return compileErr("join", "select references unknown field %q on %s", sel, o.Target.Name)
		}
	}
	return nil
}

// WindowFunc is a ranking or moving-aggregate function.
type WindowFunc string

const (
	WindowRowNumber WindowFunc = "row_number"
	WindowRank      WindowFunc = "rank"
	WindowSum       WindowFunc = "sum"
	WindowAvg       WindowFunc = "avg"
	WindowMin       WindowFunc = "min"
	WindowMax       WindowFunc = "max"
)

// Valid reports whether fn is a known window function.
func (fn WindowFunc) Valid() bool {
	switch fn {
	case WindowRowNumber, WindowRank, WindowSum, WindowAvg, WindowMin, WindowMax:
		return true
	}
	return false
}

// Ranking reports whether fn ranks rows rather than aggregating a source
// field. Ranking functions ignore Field.
func (fn WindowFunc) Ranking() bool {
	return fn == WindowRowNumber || fn == WindowRank
}

// FrameUnit selects how a window frame counts its bounds.
type FrameUnit string

const (
	FrameRows  FrameUnit = "rows"
	FrameRange FrameUnit = "range"
)

// Frame bounds a moving aggregate relative to the current row, inclusive
// on both ends. Negative Start reaches rows before the current one.
type Frame struct {
	Unit  FrameUnit
	Start int64
	End   int64
}

// WindowOp computes Fn over each partition, ordered by OrderBy, emitting
// the value under Alias on every row. Without a Frame the function runs
// over the entire partition.
type WindowOp struct {
	PartitionBy []string
	OrderBy     []Order
	Frame       *Frame
	Fn          WindowFunc
	Field       string
	Alias       string
}

func (*WindowOp) operation() {}

func (o *WindowOp) cloneOp() Operation {
	cp := *o
	cp.PartitionBy = append([]string(nil), o.PartitionBy...)
	cp.OrderBy = append([]Order(nil), o.OrderBy...)
	if o.Frame != nil {
		fr := *o.Frame
		cp.Frame = &fr
	}
	return &cp
}

// Validate checks the partition, ordering, frame and function shape.
func (o *WindowOp) Validate(m *model.Model) error {
	if !o.Fn.Valid() {
		return compileErr("window", "unknown window function %q", o.Fn)
	}
	if o.Alias == "" {
		return compileErr("window", "window function %s without an output alias", o.Fn)
	}
	for _, p := range o.PartitionBy {
		if _, ok := m.Lookup(p); !ok {
			return compileErr("window", "unknown partition field %q", p)
		}
	}
	for _, ord := range o.OrderBy {
		if _, ok := m.Lookup(ord.Field); !ok {
			return compileErr("window", "unknown order field %q", ord.Field)
		}
	}
	if o.Fn.Ranking() {
		if len(o.OrderBy) == 0 {
			return compileErr("window", "%s requires an ordering", o.Fn)
		}
		if o.Frame != nil {
			return compileErr("window", "%s does not take a frame", o.Fn)
		}
	} else {
		if _, ok := m.Lookup(o.Field); !ok {
			return compileErr("window", "%s over unknown field %q", o.Fn, o.Field)
		}
	}
	if o.Frame != nil {
		if o.Frame.Unit != FrameRows && o.Frame.Unit != FrameRange {
			return compileErr("window", "unknown frame unit %q", o.Frame.Unit)
		}
		if o.Frame.Start > o.Frame.End {
			return compileErr("window", "frame start %d after end %d", o.Frame.Start, o.Frame.End)
		}
		if o.Frame.Unit == FrameRange && len(o.OrderBy) != 1 {
			return compileErr("window", "range frame requires exactly one order field")
		}
	}
	return nil
}
