package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Artifact is a compiled, backend-native query representation. Artifacts
// are immutable once produced: the executor only reads them, and sharing
// one across concurrent executions is safe.
type Artifact interface {
	// ExtJSON renders the artifact as deterministic JSON, used by explain
	// output and golden tests. Identical specifications render identical
	// JSON.
	ExtJSON() (string, error)
}

// Compiler turns a specification into a backend-native artifact.
// Compilation is pure: no I/O, and identical specs yield identical
// artifacts.
type Compiler interface {
	Compile(spec *Spec) (Artifact, error)
}

// Backend is the full contract a storage backend implements: compile the
// spec, and reverse the value coercion on the way out.
type Backend interface {
	Compiler
	Decoder
}

// Cursor streams raw documents from a running query. Close must be safe to
// call more than once.
type Cursor interface {
	// Next advances to the next document, reporting false at the end of
	// the stream or on error.
	Next(ctx context.Context) bool

	// Current returns the document Next advanced to.
	Current() map[string]any

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close releases the cursor's resources.
	Close(ctx context.Context) error
}

// Conn runs compiled artifacts. The engine treats it as opaque; pooling,
// retries and timeouts all belong to the connection collaborator.
type Conn interface {
	Run(ctx context.Context, a Artifact) (Cursor, error)
}

// Pool hands out connections. The engine acquires around each execution
// and guarantees release on every exit path.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Release(c Conn)
}

// Engine executes specifications: compile, acquire, run, stream, map.
// An Engine is stateless beyond its collaborators and safe for concurrent
// use.
type Engine struct {
	pool    Pool
	backend Backend
	log     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger. The default discards nothing and
// logs through slog.Default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine builds an engine over a connection pool and a backend.
func NewEngine(pool Pool, backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{pool: pool, backend: backend, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute compiles and runs a specification, returning a typed row stream.
// The connection is acquired after compilation succeeds and released
// exactly once when the stream ends, errors, or is closed - including
// cancellation mid-stream.
func (e *Engine) Execute(ctx context.Context, spec *Spec) (*Rows, error) {
	artifact, err := e.backend.Compile(spec)
	if err != nil {
		return nil, err
	}

	execID := uuid.NewString()
	log := e.log.With("exec_id", execID, "collection", spec.Model.Collection)

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	log.Debug("connection acquired")

	cur, err := conn.Run(ctx, artifact)
	if err != nil {
		e.pool.Release(conn)
		log.Debug("connection released", "reason", "run failed")
		return nil, &ExecutionError{Collection: spec.Model.Collection, Err: err}
	}

	return &Rows{
		cursor:     cur,
		pool:       e.pool,
		conn:       conn,
		mapper:     NewMapper(spec, e.backend),
		collection: spec.Model.Collection,
		log:        log,
	}, nil
}

// Rows is a lazy stream of typed records. The usual loop:
//
//	rows, err := engine.Execute(ctx, spec)
//	if err != nil { ... }
//	defer rows.Close(ctx)
//	for rows.Next(ctx) {
//	    rec := rows.Record()
//	    ...
//	}
//	if err := rows.Err(); err != nil { ... }
//
// Rows already yielded stay yielded even when a later row fails to map;
// the stream stops at the raising row and Err reports it.
type Rows struct {
	cursor     Cursor
	pool       Pool
	conn       Conn
	mapper     *Mapper
	collection string
	log        *slog.Logger

	rec     Record
	err     error
	done    bool
	release sync.Once
}

// Next advances to the next record. It returns false at the end of the
// stream, on error, or after Close; the underlying connection is released
// as soon as the stream stops for any reason.
func (r *Rows) Next(ctx context.Context) bool {
	if r.done {
		return false
	}
	if !r.cursor.Next(ctx) {
		if err := r.cursor.Err(); err != nil {
			r.err = &ExecutionError{Collection: r.collection, Err: err}
		}
		r.stop(ctx)
		return false
	}
	rec, err := r.mapper.MapRow(r.cursor.Current())
	if err != nil {
		r.err = err
		r.stop(ctx)
		return false
	}
	r.rec = rec
	return true
}

// Record returns the record Next advanced to.
func (r *Rows) Record() Record { return r.rec }

// Err returns the error that terminated the stream, if any.
func (r *Rows) Err() error { return r.err }

// Close stops the stream and releases the connection. Safe to call more
// than once and after exhaustion; the release happens exactly once.
func (r *Rows) Close(ctx context.Context) error {
	r.stop(ctx)
	return r.err
}

// All drains the stream into a slice and closes it.
func (r *Rows) All(ctx context.Context) ([]Record, error) {
	defer r.stop(ctx)
	var out []Record
	for r.Next(ctx) {
		out = append(out, r.rec)
	}
	return out, r.err
}

func (r *Rows) stop(ctx context.Context) {
	r.done = true
	r.release.Do(func() {
		if err := r.cursor.Close(ctx); err != nil && r.err == nil {
			r.err = &ExecutionError{Collection: r.collection, Err: err}
		}
		r.pool.Release(r.conn)
		r.log.Debug("connection released")
	})
}
