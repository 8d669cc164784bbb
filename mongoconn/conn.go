// Package mongoconn adapts a mongo driver database handle to the engine's
// connection contract. The driver already multiplexes sessions over its
// own pool, so Acquire is cheap and Release is a no-op; the engine's
// acquire/release discipline still brackets every execution, which keeps
// the contract identical across this package and the in-memory store.
package mongoconn

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docql/docql/mongodoc"
	"github.com/docql/docql/query"
)

// Pool hands out connections over one database handle.
type Pool struct {
	db *mongo.Database
}

// New wraps a database handle.
func New(db *mongo.Database) *Pool {
	return &Pool{db: db}
}

// Acquire implements query.Pool.
func (p *Pool) Acquire(ctx context.Context) (query.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{db: p.db}, nil
}

// Release implements query.Pool.
func (p *Pool) Release(query.Conn) {}

type conn struct {
	db *mongo.Database
}

// Run executes a compiled artifact: a find for the plain mode, an
// aggregation for the pipeline mode. An Empty artifact never reaches the
// server.
func (c *conn) Run(ctx context.Context, a query.Artifact) (query.Cursor, error) {
	art, ok := a.(*mongodoc.Artifact)
	if !ok {
		return nil, fmt.Errorf("mongoconn runs mongodoc artifacts, got %T", a)
	}
	if art.Empty {
		return emptyCursor{}, nil
	}

	coll := c.db.Collection(art.Collection)

	if art.Pipeline != nil {
		cur, err := coll.Aggregate(ctx, art.Pipeline)
		if err != nil {
			return nil, err
		}
		return &cursor{cur: cur}, nil
	}

	opts := options.Find()
	if art.Projection != nil {
		opts.SetProjection(art.Projection)
	}
	if art.Sort != nil {
		opts.SetSort(art.Sort)
	}
	if art.Skip != nil {
		opts.SetSkip(*art.Skip)
	}
	if art.Limit != nil {
		opts.SetLimit(*art.Limit)
	}
	filter := art.Filter
	if filter == nil {
		filter = bson.D{}
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &cursor{cur: cur}, nil
}

// cursor adapts the driver cursor, decoding each document into a map as
// the stream advances.
type cursor struct {
	cur *mongo.Cursor
	doc bson.M
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.cur.Next(ctx) {
		return false
	}
	c.doc = nil
	if err := c.cur.Decode(&c.doc); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *cursor) Current() map[string]any { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

type emptyCursor struct{}

func (emptyCursor) Next(context.Context) bool { return false }

func (emptyCursor) Current() map[string]any { return nil }

func (emptyCursor) Err() error { return nil }

func (emptyCursor) Close(context.Context) error { return nil }
