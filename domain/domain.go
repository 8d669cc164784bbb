package domain

import "fmt"

// Operator is the closed set of comparison and membership operators a
// condition may use. Adding an operator requires a coercion table entry in
// every backend, so the set is deliberately small.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpLike      Operator = "like"
	OpILike     Operator = "ilike"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// Valid reports whether op is a member of the closed operator set.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte,
		OpIn, OpNotIn, OpLike, OpILike, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// ValueShape describes the value arity an operator expects.
type ValueShape int

const (
	// ShapeScalar expects a single non-list value.
	ShapeScalar ValueShape = iota
	// ShapeList expects a list of values.
	ShapeList
	// ShapeNone expects no value at all.
	ShapeNone
)

// Shape returns the value shape op expects. Unknown operators report
// ShapeScalar; Valid catches them before shape matters.
func (op Operator) Shape() ValueShape {
	switch op {
	case OpIn, OpNotIn:
		return ShapeList
	case OpIsNull, OpIsNotNull:
		return ShapeNone
	default:
		return ShapeScalar
	}
}

// Connector is a prefix combinator token in a domain sequence.
// It is a Term but never part of a normalized tree.
type Connector string

const (
	AndToken Connector = "&"
	OrToken  Connector = "|"
	NotToken Connector = "!"
)

// arity returns how many complete sub-expressions the connector consumes.
func (c Connector) arity() int {
	if c == NotToken {
		return 1
	}
	return 2
}

// Valid reports whether c is one of the three known connectors.
func (c Connector) Valid() bool {
	return c == AndToken || c == OrToken || c == NotToken
}

// Term is one element of a flat domain sequence: either a Cond or a
// Connector. This is a sealed interface - only types in this package
// implement it.
type Term interface {
	term() // Marker method - seals interface to this package
}

func (Connector) term() {}
func (Cond) term()      {}

// Seq is an ordered domain term sequence, read in prefix form.
type Seq []Term

// C builds a condition term. It is the usual way callers spell leaves:
//
//	domain.C("age", domain.OpGte, 18)
func C(field string, op Operator, value any) Cond {
	return Cond{Field: field, Op: op, Value: value}
}

// List builds a value list for in/not_in conditions.
func List(values ...any) []any { return values }

// String renders a connector for diagnostics.
func (c Connector) String() string { return string(c) }

// String renders a condition for diagnostics, never for the wire.
func (l Cond) String() string {
	switch l.Op.Shape() {
	case ShapeNone:
		return fmt.Sprintf("(%s %s)", l.Field, l.Op)
	default:
		return fmt.Sprintf("(%s %s %v)", l.Field, l.Op, l.Value)
	}
}
