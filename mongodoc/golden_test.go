package mongodoc

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/query"
)

func assertGoldenArtifact(t *testing.T, name string, b *query.Builder) {
	t.Helper()
	spec, err := b.Build()
	require.NoError(t, err)
	art, err := New().Compile(spec)
	require.NoError(t, err)
	out, err := art.ExtJSON()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(out))
}

func TestGolden_Find(t *testing.T) {
	assertGoldenArtifact(t, "find_basic", query.NewBuilder(orderModel()).
		Filter(
			domain.C("status", domain.OpEq, "active"),
			domain.C("qty", domain.OpGt, 3),
		).
		Select("status", "qty").
		OrderBy("placed_at", query.Desc).
		Offset(5).
		Limit(10))
}

func TestGolden_EmptyResult(t *testing.T) {
	assertGoldenArtifact(t, "limit_zero", query.NewBuilder(orderModel()).
		Filter(domain.C("status", domain.OpEq, "x")).
		Limit(0))
}

func TestGolden_AggregatePipeline(t *testing.T) {
	assertGoldenArtifact(t, "aggregate_having", query.NewBuilder(orderModel()).
		Filter(domain.C("status", domain.OpEq, "active")).
		GroupBy("status").
		Count("n").
		Having(domain.C("n", domain.OpGte, 2)).
		End())
}
