package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docql/docql/model"
)

// fakeBackend compiles to a canned artifact and decodes identically,
// except for sentinel values the tests use to force mapping failures.
type fakeBackend struct {
	compileErr error
}

type fakeArtifact struct{}

func (fakeArtifact) ExtJSON() (string, error) { return "{}", nil }

func (f *fakeBackend) Compile(spec *Spec) (Artifact, error) {
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	return fakeArtifact{}, nil
}

func (f *fakeBackend) DecodeField(fd model.Field, wire any) (any, error) {
	if wire == "poison" {
		return nil, fmt.Errorf("undecodable")
	}
	return wire, nil
}

func (f *fakeBackend) DecodeValue(wire any) (any, error) { return wire, nil }

type fakePool struct {
	conn       *fakeConn
	acquireErr error
	acquired   int
	released   int
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.conn, nil
}

func (p *fakePool) Release(Conn) { p.released++ }

type fakeConn struct {
	runErr error
	docs   []map[string]any
	curErr error
}

func (c *fakeConn) Run(ctx context.Context, a Artifact) (Cursor, error) {
	if c.runErr != nil {
		return nil, c.runErr
	}
	return &fakeCursor{docs: c.docs, failAfter: c.curErr}, nil
}

type fakeCursor struct {
	docs      []map[string]any
	pos       int
	cur       map[string]any
	failAfter error
	err       error
	closes    int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		if c.failAfter != nil {
			c.err = c.failAfter
		}
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *fakeCursor) Current() map[string]any { return c.cur }
func (c *fakeCursor) Err() error              { return c.err }

func (c *fakeCursor) Close(context.Context) error {
	c.closes++
	return nil
}

func execSpec(t *testing.T) *Spec {
	t.Helper()
	spec, err := NewBuilder(testModel()).Build()
	require.NoError(t, err)
	return spec
}

func TestEngine_HappyPath(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{docs: []map[string]any{
		{"status": "a", "qty": int64(1)},
		{"status": "b", "qty": int64(2)},
	}}}
	eng := NewEngine(pool, &fakeBackend{})

	rows, err := eng.Execute(context.Background(), execSpec(t))
	require.NoError(t, err)
	recs, err := rows.All(context.Background())
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Value("status"))
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
}

func TestEngine_CompileFailureAcquiresNothing(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	eng := NewEngine(pool, &fakeBackend{compileErr: errors.New("bad spec")})

	_, err := eng.Execute(context.Background(), execSpec(t))
	require.Error(t, err)
	assert.Zero(t, pool.acquired)
}

func TestEngine_AcquireFailure(t *testing.T) {
	pool := &fakePool{acquireErr: errors.New("pool dry")}
	eng := NewEngine(pool, &fakeBackend{})

	_, err := eng.Execute(context.Background(), execSpec(t))
	require.Error(t, err)
	assert.Zero(t, pool.released)
}

func TestEngine_RunFailureReleases(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{runErr: errors.New("socket gone")}}
	eng := NewEngine(pool, &fakeBackend{})

	_, err := eng.Execute(context.Background(), execSpec(t))
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
}

func TestEngine_CursorErrorWrappedAsExecution(t *testing.T) {
	cause := errors.New("stream reset")
	pool := &fakePool{conn: &fakeConn{
		docs:   []map[string]any{{"qty": int64(1)}},
		curErr: cause,
	}}
	eng := NewEngine(pool, &fakeBackend{})

	rows, err := eng.Execute(context.Background(), execSpec(t))
	require.NoError(t, err)
	_, err = rows.All(context.Background())
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, pool.released)
}

func TestEngine_MappingErrorStopsAtRaisingRow(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{docs: []map[string]any{
		{"status": "fine"},
		{"status": "poison"},
		{"status": "never reached"},
	}}}
	eng := NewEngine(pool, &fakeBackend{})

	rows, err := eng.Execute(context.Background(), execSpec(t))
	require.NoError(t, err)

	var yielded []Record
	for rows.Next(context.Background()) {
		yielded = append(yielded, rows.Record())
	}
	require.Error(t, rows.Err())
	assert.True(t, IsMapping(rows.Err()))

	var me *MappingError
	require.ErrorAs(t, rows.Err(), &me)
	assert.Equal(t, "status", me.Field)

	require.Len(t, yielded, 1)
	assert.Equal(t, "fine", yielded[0].Value("status"))
	assert.Equal(t, 1, pool.released)
}

func TestRows_CloseIsIdempotent(t *testing.T) {
	cur := &fakeCursor{docs: []map[string]any{{"qty": int64(1)}}}
	pool := &fakePool{conn: &fakeConn{}}
	pool.conn.docs = cur.docs

	eng := NewEngine(pool, &fakeBackend{})
	rows, err := eng.Execute(context.Background(), execSpec(t))
	require.NoError(t, err)

	require.NoError(t, rows.Close(context.Background()))
	require.NoError(t, rows.Close(context.Background()))
	assert.Equal(t, 1, pool.released)
	assert.False(t, rows.Next(context.Background()))
}

func TestRows_ExhaustionReleasesOnce(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{docs: []map[string]any{{"qty": int64(1)}}}}
	eng := NewEngine(pool, &fakeBackend{})

	rows, err := eng.Execute(context.Background(), execSpec(t))
	require.NoError(t, err)
	for rows.Next(context.Background()) {
	}
	require.NoError(t, rows.Err())
	_ = rows.Close(context.Background())
	assert.Equal(t, 1, pool.released)
}
