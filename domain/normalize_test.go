package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EmptySequenceIsIdentity(t *testing.T) {
	expr, err := Normalize(nil)
	require.NoError(t, err)
	assert.Equal(t, True{}, expr)
}

func TestNormalize_SingleCondition(t *testing.T) {
	expr, err := Normalize(Seq{C("age", OpGte, 18)})
	require.NoError(t, err)
	assert.Equal(t, C("age", OpGte, 18), expr)
}

func TestNormalize_BareLeavesAreRightNestedConjunction(t *testing.T) {
	// [a, b, c] must read as AND(a, AND(b, c)).
	a := C("age", OpGte, 18)
	b := C("status", OpEq, "active")
	c := C("role", OpNeq, "bot")

	expr, err := Normalize(Seq{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, And{Left: a, Right: And{Left: b, Right: c}}, expr)
}

func TestNormalize_ExplicitOr(t *testing.T) {
	a := C("role", OpEq, "admin")
	b := C("role", OpEq, "manager")

	expr, err := Normalize(Seq{OrToken, a, b})
	require.NoError(t, err)
	assert.Equal(t, Or{Left: a, Right: b}, expr)
}

func TestNormalize_NotConsumesOneExpression(t *testing.T) {
	a := C("archived", OpEq, true)

	expr, err := Normalize(Seq{NotToken, a})
	require.NoError(t, err)
	assert.Equal(t, Not{Inner: a}, expr)
}

func TestNormalize_ConnectorBindsFollowingExpressions(t *testing.T) {
	// [a, "|", b, c] reads as AND(a, OR(b, c)): the connector consumes the
	// two complete expressions after it, and the bare leading leaf is
	// implicitly conjoined.
	a := C("age", OpGte, 18)
	b := C("role", OpEq, "admin")
	c := C("role", OpEq, "manager")

	expr, err := Normalize(Seq{a, OrToken, b, c})
	require.NoError(t, err)
	assert.Equal(t, And{Left: a, Right: Or{Left: b, Right: c}}, expr)
}

func TestNormalize_TrailingLeafAfterConnector(t *testing.T) {
	// ["|", a, b, c]: the OR binds a and b; c is implicitly conjoined.
	a := C("role", OpEq, "admin")
	b := C("role", OpEq, "manager")
	c := C("active", OpEq, true)

	expr, err := Normalize(Seq{OrToken, a, b, c})
	require.NoError(t, err)
	assert.Equal(t, And{Left: Or{Left: a, Right: b}, Right: c}, expr)
}

func TestNormalize_NestedConnectors(t *testing.T) {
	// ["!", "|", a, b] reads as NOT(OR(a, b)).
	a := C("role", OpEq, "bot")
	b := C("role", OpEq, "crawler")

	expr, err := Normalize(Seq{NotToken, OrToken, a, b})
	require.NoError(t, err)
	assert.Equal(t, Not{Inner: Or{Left: a, Right: b}}, expr)
}

func TestNormalize_StarvedConnectorFails(t *testing.T) {
	// ["&", a] is missing the second operand.
	_, err := Normalize(Seq{AndToken, C("age", OpGte, 18)})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
	assert.Contains(t, err.Error(), "needs 2 operand(s)")
}

func TestNormalize_StarvedNotFails(t *testing.T) {
	_, err := Normalize(Seq{NotToken})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
}

func TestNormalize_ListOperatorNeedsList(t *testing.T) {
	_, err := Normalize(Seq{C("status", OpIn, "active")})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
	assert.Contains(t, err.Error(), "needs a list value")
}

func TestNormalize_ScalarOperatorRejectsList(t *testing.T) {
	_, err := Normalize(Seq{C("status", OpEq, List("a", "b"))})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
}

func TestNormalize_NullOperatorRejectsValue(t *testing.T) {
	_, err := Normalize(Seq{C("deleted_at", OpIsNull, "yes")})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
	assert.Contains(t, err.Error(), "takes no value")
}

func TestNormalize_UnknownOperatorFails(t *testing.T) {
	_, err := Normalize(Seq{C("age", Operator("between"), 5)})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
}

func TestNormalize_UnknownConnectorFails(t *testing.T) {
	_, err := Normalize(Seq{Connector("^"), C("a", OpEq, 1), C("b", OpEq, 2)})
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
}

func TestNormalizeNonEmpty_RejectsEmptySequence(t *testing.T) {
	_, err := NormalizeNonEmpty(nil)
	require.Error(t, err)
	assert.True(t, IsMalformedDomain(err))
	assert.Contains(t, err.Error(), "predicate is required")
}

func TestNormalizeNonEmpty_AcceptsPredicate(t *testing.T) {
	expr, err := NormalizeNonEmpty(Seq{C("total", OpGt, 10)})
	require.NoError(t, err)
	assert.Equal(t, C("total", OpGt, 10), expr)
}

func TestFormat_RendersPrefixForm(t *testing.T) {
	expr, err := Normalize(Seq{NotToken, OrToken,
		C("role", OpEq, "bot"), C("banned", OpEq, true)})
	require.NoError(t, err)
	assert.Equal(t, `NOT(OR((role eq bot), (banned eq true)))`, Format(expr))
}

func TestFields_DistinctFirstAppearance(t *testing.T) {
	expr, err := Normalize(Seq{
		C("age", OpGte, 18),
		C("status", OpEq, "active"),
		C("age", OpLt, 65),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "status"}, Fields(expr))
}

func TestOperator_Shapes(t *testing.T) {
	assert.Equal(t, ShapeList, OpIn.Shape())
	assert.Equal(t, ShapeList, OpNotIn.Shape())
	assert.Equal(t, ShapeNone, OpIsNull.Shape())
	assert.Equal(t, ShapeNone, OpIsNotNull.Shape())
	assert.Equal(t, ShapeScalar, OpEq.Shape())
	assert.Equal(t, ShapeScalar, OpILike.Shape())
}
