// Package memdoc is an in-memory document store that runs compiled
// artifacts without a server. It interprets the same filter documents and
// pipeline stages the production store would evaluate, which makes it the
// execution substrate for tests and the scenario harness.
package memdoc

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/docql/docql/mongodoc"
	"github.com/docql/docql/query"
)

// Store holds wire-typed documents per collection. It implements
// query.Pool directly; every acquired connection reads a consistent view
// of the data.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]bson.M

	acquired int64
	released int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]bson.M)}
}

// Load appends wire-typed documents to a collection. Use
// mongodoc.EncodeDocument to produce them from caller values.
func (s *Store) Load(collection string, docs ...bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docs...)
}

// Acquire hands out a connection. Part of the query.Pool contract.
func (s *Store) Acquire(ctx context.Context) (query.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.acquired++
	s.mu.Unlock()
	return &conn{store: s}, nil
}

// Release returns a connection. Part of the query.Pool contract.
func (s *Store) Release(query.Conn) {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

// Leaked reports how many acquired connections were never released.
// Tests assert it is zero after a stream ends.
func (s *Store) Leaked() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acquired - s.released
}

func (s *Store) snapshot(collection string) []bson.M {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	out := make([]bson.M, len(docs))
	copy(out, docs)
	return out
}

type conn struct {
	store *Store
}

// Run interprets a compiled artifact against the store's current contents.
func (c *conn) Run(ctx context.Context, a query.Artifact) (query.Cursor, error) {
	art, ok := a.(*mongodoc.Artifact)
	if !ok {
		return nil, fmt.Errorf("memdoc runs mongodoc artifacts, got %T", a)
	}
	if art.Empty {
		return &cursor{}, nil
	}

	docs := c.store.snapshot(art.Collection)

	if art.Pipeline != nil {
		out, err := c.store.runPipeline(docs, art.Pipeline)
		if err != nil {
			return nil, err
		}
		return &cursor{docs: out}, nil
	}

	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		ok, err := matchDoc(doc, art.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	if art.Sort != nil {
		sortDocs(out, art.Sort)
	}
	out = slice(out, art.Skip, art.Limit)
	if art.Projection != nil {
		for i, doc := range out {
			out[i] = projectDoc(doc, art.Projection)
		}
	}
	return &cursor{docs: out}, nil
}

func slice(docs []bson.M, skip, limit *int64) []bson.M {
	if skip != nil {
		n := int(*skip)
		if n >= len(docs) {
			return nil
		}
		docs = docs[n:]
	}
	if limit != nil && int(*limit) < len(docs) {
		docs = docs[:int(*limit)]
	}
	return docs
}

// cursor walks a materialized result slice.
type cursor struct {
	docs   []bson.M
	pos    int
	cur    map[string]any
	err    error
	closed bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.docs) {
		return false
	}
	c.cur = map[string]any(c.docs[c.pos])
	c.pos++
	return true
}

func (c *cursor) Current() map[string]any { return c.cur }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(context.Context) error {
	c.closed = true
	return nil
}
