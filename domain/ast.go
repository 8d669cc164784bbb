package domain

import "fmt"

// Expr is a node of a normalized expression tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Node types:
//   - Cond: atomic comparison (field, operator, value)
//   - And, Or: binary combination of two sub-trees
//   - Not: negation of one sub-tree
//   - True: the identity node an empty domain normalizes to
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Cond is an atomic comparison. It appears both as a sequence term and as
// a leaf of the normalized tree.
type Cond struct {
	Field string   // declared field name, resolved to a storage name later
	Op    Operator // member of the closed operator set
	Value any      // scalar, []any for list-shaped operators, nil for none
}

func (Cond) exprNode() {}

// And combines two sub-trees; both must hold.
type And struct {
	Left  Expr
	Right Expr
}

func (And) exprNode() {}

// Or combines two sub-trees; at least one must hold.
type Or struct {
	Left  Expr
	Right Expr
}

func (Or) exprNode() {}

// Not negates a single sub-tree.
type Not struct {
	Inner Expr
}

func (Not) exprNode() {}

// True is the always-true identity node. An empty domain normalizes to it,
// and backends compile it to "no filter".
type True struct{}

func (True) exprNode() {}

// Format renders a tree in prefix form for explain output and error
// messages. The rendering is not part of any wire format.
func Format(e Expr) string {
	switch n := e.(type) {
	case True:
		return "TRUE"
	case Cond:
		return n.String()
	case And:
		return fmt.Sprintf("AND(%s, %s)", Format(n.Left), Format(n.Right))
	case Or:
		return fmt.Sprintf("OR(%s, %s)", Format(n.Left), Format(n.Right))
	case Not:
		return fmt.Sprintf("NOT(%s)", Format(n.Inner))
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

// Walk calls fn for every node of the tree in depth-first order. It is used
// by compilers and by validation passes that need every leaf.
func Walk(e Expr, fn func(Expr)) {
	fn(e)
	switch n := e.(type) {
	case And:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case Or:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case Not:
		Walk(n.Inner, fn)
	}
}

// Fields returns the distinct field names referenced by the tree, in first-
// appearance order.
func Fields(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	Walk(e, func(n Expr) {
		if c, ok := n.(Cond); ok && !seen[c.Field] {
			seen[c.Field] = true
			out = append(out, c.Field)
		}
	})
	return out
}
