package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
)

func testModel() *model.Model {
	return model.MustNew("order", "orders",
		model.Field{Name: "id", Type: model.TypeID, Storage: "_id"},
		model.Field{Name: "status", Type: model.TypeText},
		model.Field{Name: "qty", Type: model.TypeInt},
		model.Field{Name: "placed_at", Type: model.TypeDateTime},
	)
}

func TestBuilder_FilterAccumulates(t *testing.T) {
	spec, err := NewBuilder(testModel()).
		Filter(domain.C("status", domain.OpEq, "a")).
		Filter(domain.C("qty", domain.OpGt, 1)).
		Build()
	require.NoError(t, err)

	expr, err := spec.NormalizedFilter()
	require.NoError(t, err)
	assert.Equal(t, "AND((status eq a), (qty gt 1))", domain.Format(expr))
}

func TestBuilder_OrderByAccumulates(t *testing.T) {
	spec, err := NewBuilder(testModel()).
		OrderBy("status", Asc).
		OrderBy("qty", Desc).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []Order{
		{Field: "status", Dir: Asc},
		{Field: "qty", Dir: Desc},
	}, spec.OrderBy)
}

func TestBuilder_SelectReplaces(t *testing.T) {
	spec, err := NewBuilder(testModel()).
		Select("status", "qty").
		Select("qty").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"qty"}, spec.Projection)
}

func TestBuilder_LimitOffsetLastWriteWins(t *testing.T) {
	spec, err := NewBuilder(testModel()).
		Limit(10).
		Offset(3).
		Limit(20).
		Build()
	require.NoError(t, err)
	require.NotNil(t, spec.Limit)
	require.NotNil(t, spec.Offset)
	assert.Equal(t, int64(20), *spec.Limit)
	assert.Equal(t, int64(3), *spec.Offset)
}

func TestBuilder_LimitZeroIsRecorded(t *testing.T) {
	spec, err := NewBuilder(testModel()).Limit(0).Build()
	require.NoError(t, err)
	require.NotNil(t, spec.Limit)
	assert.Equal(t, int64(0), *spec.Limit)
}

func TestBuilder_NegativeRangeSurfacesAtBuild(t *testing.T) {
	b := NewBuilder(testModel()).Limit(-1).OrderBy("qty", Asc)
	_, err := b.Build()
	require.Error(t, err)
	assert.True(t, IsInvalidRange(err))

	_, err = NewBuilder(testModel()).Offset(-5).Build()
	assert.True(t, IsInvalidRange(err))
}

func TestBuilder_FirstErrorWins(t *testing.T) {
	b := NewBuilder(testModel()).Limit(-1).Offset(-2)
	_, err := b.Build()
	var ire *InvalidRangeError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, "limit", ire.What)
}

func TestBuilder_MalformedDomainFailsBuild(t *testing.T) {
	_, err := NewBuilder(testModel()).
		Filter(domain.AndToken, domain.C("qty", domain.OpGt, 1)).
		Build()
	require.Error(t, err)
	assert.True(t, domain.IsMalformedDomain(err))
}

func TestBuilder_UnknownFieldsFailBuild(t *testing.T) {
	_, err := NewBuilder(testModel()).Select("nope").Build()
	assert.True(t, IsCompilation(err))

	_, err = NewBuilder(testModel()).OrderBy("nope", Asc).Build()
	assert.True(t, IsCompilation(err))
}

func TestBuilder_SnapshotIsImmutable(t *testing.T) {
	b := NewBuilder(testModel()).Filter(domain.C("status", domain.OpEq, "a"))
	first, err := b.Build()
	require.NoError(t, err)

	b.Filter(domain.C("qty", domain.OpGt, 5)).Limit(3)
	second, err := b.Build()
	require.NoError(t, err)

	assert.Len(t, first.Filter, 1)
	assert.Nil(t, first.Limit)
	assert.Len(t, second.Filter, 2)
	require.NotNil(t, second.Limit)
}

func TestBuilder_BuildTwiceIndependentSnapshots(t *testing.T) {
	b := NewBuilder(testModel()).Select("status")
	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.Build()
	require.NoError(t, err)

	first.Projection[0] = "mutated"
	assert.Equal(t, []string{"status"}, second.Projection)
}

func TestGroupBuilder_ValidationAtEnd(t *testing.T) {
	b := NewBuilder(testModel()).
		GroupBy("status").
		Metric(MetricSum, "nope", "s").
		End()
	_, err := b.Build()
	assert.True(t, IsCompilation(err))

	b = NewBuilder(testModel()).GroupBy("status").End()
	_, err = b.Build()
	assert.True(t, IsCompilation(err), "aggregate with no metrics")

	b = NewBuilder(testModel()).
		GroupBy("status").
		Count("n").
		Count("n").
		End()
	_, err = b.Build()
	assert.True(t, IsCompilation(err), "duplicate alias")
}

func TestGroupBuilder_HavingOverAliasesOnly(t *testing.T) {
	b := NewBuilder(testModel()).
		GroupBy("status").
		Count("n").
		Having(domain.C("qty", domain.OpGt, 1)).
		End()
	_, err := b.Build()
	assert.True(t, IsCompilation(err))
}

func TestJoinBuilder_Defaults(t *testing.T) {
	other := model.MustNew("customer", "customers",
		model.Field{Name: "id", Type: model.TypeID, Storage: "_id"},
	)
	spec, err := NewBuilder(testModel()).
		Join(other, "id", "id").
		End().
		Build()
	require.NoError(t, err)
	require.Len(t, spec.Operations, 1)
	join := spec.Operations[0].(*JoinOp)
	assert.Equal(t, JoinLeft, join.Kind)
}

func TestWindowBuilder_Validation(t *testing.T) {
	_, err := NewBuilder(testModel()).
		Window(WindowRowNumber, "rn").
		End().
		Build()
	assert.True(t, IsCompilation(err), "ranking needs an ordering")

	_, err = NewBuilder(testModel()).
		Window(WindowRank, "r").
		OrderBy("qty", Asc).
		Frame(FrameRows, -1, 0).
		End().
		Build()
	assert.True(t, IsCompilation(err), "ranking takes no frame")

	_, err = NewBuilder(testModel()).
		Window(WindowSum, "s").
		Source("qty").
		OrderBy("qty", Asc).
		Frame(FrameRows, 1, -1).
		End().
		Build()
	assert.True(t, IsCompilation(err), "frame start after end")

	_, err = NewBuilder(testModel()).
		Window(WindowSum, "s").
		Source("qty").
		OrderBy("qty", Asc).
		OrderBy("status", Asc).
		Frame(FrameRange, -1, 1).
		End().
		Build()
	assert.True(t, IsCompilation(err), "range frame needs one order field")
}

func TestBuilder_OperationsKeepDeclarationOrder(t *testing.T) {
	spec, err := NewBuilder(testModel()).
		Window(WindowRowNumber, "rn").
		OrderBy("placed_at", Asc).
		End().
		GroupBy("status").
		Count("n").
		End().
		Build()
	require.NoError(t, err)
	require.Len(t, spec.Operations, 2)
	assert.IsType(t, &WindowOp{}, spec.Operations[0])
	assert.IsType(t, &AggregateOp{}, spec.Operations[1])
}
