package mongodoc

import (
	"regexp"
	"strings"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
)

// nativeOp maps the abstract operator set to the store's operator tokens.
// Pattern and null operators are not listed; they compile through regex
// and null-equality forms rather than a single token.
var nativeOp = map[domain.Operator]string{
	domain.OpEq:    "$eq",
	domain.OpNeq:   "$ne",
	domain.OpGt:    "$gt",
	domain.OpGte:   "$gte",
	domain.OpLt:    "$lt",
	domain.OpLte:   "$lte",
	domain.OpIn:    "$in",
	domain.OpNotIn: "$nin",
}

// ordered lists the field types the range operators apply to. Booleans,
// ids and lists have no useful ordering.
var ordered = map[model.FieldType]bool{
	model.TypeInt:      true,
	model.TypeFloat:    true,
	model.TypeDecimal:  true,
	model.TypeDateTime: true,
	model.TypeText:     true,
}

// operatorAllowed reports whether op can apply to a field of type t. The
// table is closed on both axes: a new operator or field type must be
// entered here explicitly.
func operatorAllowed(op domain.Operator, t model.FieldType) bool {
	switch op {
	case domain.OpEq, domain.OpNeq, domain.OpIsNull, domain.OpIsNotNull:
		return true
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		return ordered[t]
	case domain.OpIn, domain.OpNotIn:
		return t != model.TypeList
	case domain.OpLike, domain.OpILike:
		return t == model.TypeText
	}
	return false
}

// likeToRegex converts a SQL-style pattern to an anchored regular
// expression: "%" matches any run, "_" any single character, everything
// else literally.
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}
