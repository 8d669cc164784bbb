package domain

// Normalize reduces a flat prefix sequence into a binary expression tree.
//
// The reduction runs right to left over the sequence with an explicit
// stack: conditions are pushed; a connector pops the sub-expressions it
// consumes (two for "&" and "|", one for "!") and pushes the combined
// node. If more than one expression remains once every term is consumed,
// the leftovers are implicitly conjoined pairwise, left-associatively in
// source order, so a bare [a, b, c] reads as AND(a, AND(b, c)).
//
// An empty sequence normalizes to the always-true identity node.
//
// Returns MalformedDomainError when:
//   - a connector runs out of operands,
//   - an unknown operator or connector appears,
//   - a condition's value does not match its operator's shape.
func Normalize(seq Seq) (Expr, error) {
	if err := checkTerms(seq); err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return True{}, nil
	}

	var stack []Expr
	for i := len(seq) - 1; i >= 0; i-- {
		switch t := seq[i].(type) {
		case Cond:
			stack = append(stack, t)
		case Connector:
			if len(stack) < t.arity() {
				return nil, malformed(i, "connector %q needs %d operand(s), have %d",
					t, t.arity(), len(stack))
			}
			if t == NotToken {
				inner := stack[len(stack)-1]
				stack[len(stack)-1] = Not{Inner: inner}
				continue
			}
			left := stack[len(stack)-1]
			right := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			if t == AndToken {
				stack = append(stack, And{Left: left, Right: right})
			} else {
				stack = append(stack, Or{Left: left, Right: right})
			}
		}
	}

	// Leftover top-level expressions are implicit conjunction. The stack
	// holds them with the leftmost (in source order) on top; folding from
	// the bottom up nests to the right, so [a, b, c] becomes
	// AND(a, AND(b, c)).
	expr := stack[0]
	for i := 1; i < len(stack); i++ {
		expr = And{Left: stack[i], Right: expr}
	}
	return expr, nil
}

// NormalizeNonEmpty is Normalize for callers that require an actual
// predicate, such as a HAVING clause. An empty sequence is malformed.
func NormalizeNonEmpty(seq Seq) (Expr, error) {
	expr, err := Normalize(seq)
	if err != nil {
		return nil, err
	}
	if _, ok := expr.(True); ok {
		return nil, malformed(-1, "empty domain where a predicate is required")
	}
	return expr, nil
}

// checkTerms validates every term's own shape before reduction so that
// positional error reporting refers to the original sequence.
func checkTerms(seq Seq) error {
	for i, t := range seq {
		switch term := t.(type) {
		case Connector:
			if !term.Valid() {
				return malformed(i, "unknown connector %q", string(term))
			}
		case Cond:
			if term.Field == "" {
				return malformed(i, "condition with empty field name")
			}
			if !term.Op.Valid() {
				return malformed(i, "unknown operator %q", string(term.Op))
			}
			switch term.Op.Shape() {
			case ShapeList:
				if _, ok := term.Value.([]any); !ok {
					return malformed(i, "operator %q needs a list value, got %T",
						term.Op, term.Value)
				}
			case ShapeNone:
				if term.Value != nil {
					return malformed(i, "operator %q takes no value, got %T",
						term.Op, term.Value)
				}
			case ShapeScalar:
				if _, ok := term.Value.([]any); ok {
					return malformed(i, "operator %q needs a scalar value, got a list",
						term.Op)
				}
			}
		default:
			return malformed(i, "unknown term type %T", t)
		}
	}
	return nil
}
