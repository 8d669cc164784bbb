package mongodoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
	"github.com/docql/docql/query"
)

// Backend compiles specifications to document-store artifacts and reverses
// the wire coercion on results. A Backend is stateless and safe for
// concurrent use.
type Backend struct{}

// New returns a document-store backend.
func New() *Backend {
	return &Backend{}
}

// Compile turns a specification into a native artifact. Compilation is
// pure; every validation failure a backend can detect surfaces here,
// before any connection is touched.
func (b *Backend) Compile(spec *query.Spec) (query.Artifact, error) {
	a := &Artifact{Collection: spec.Model.Collection}

	if spec.Limit != nil && *spec.Limit == 0 {
		a.Empty = true
		return a, nil
	}

	expr, err := spec.NormalizedFilter()
	if err != nil {
		return nil, err
	}
	filter, err := compileExpr(spec.Model, expr)
	if err != nil {
		return nil, err
	}

	if len(spec.Operations) == 0 {
		a.Filter = filter
		a.Projection = findProjection(spec)
		a.Sort = sortDoc(spec.Model, spec.OrderBy)
		a.Skip = spec.Offset
		a.Limit = spec.Limit
		return a, nil
	}

	pipeline := mongo.Pipeline{}
	if len(filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
	}
	for _, op := range spec.Operations {
		stages, err := compileOperation(spec.Model, op)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, stages...)
	}
	if len(spec.OrderBy) > 0 {
		keys := make(bson.D, 0, len(spec.OrderBy))
		for _, ord := range spec.OrderBy {
			keys = append(keys, bson.E{Key: resultKey(spec, ord.Field), Value: sortValue(ord.Dir)})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: keys}})
	}
	if spec.Offset != nil {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: *spec.Offset}})
	}
	if spec.Limit != nil {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: *spec.Limit}})
	}
	if proj := pipelineProjection(spec); proj != nil {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: proj}})
	}
	a.Pipeline = pipeline
	return a, nil
}

// compileExpr lowers a normalized expression tree to a native filter
// document. True lowers to the empty document.
func compileExpr(m *model.Model, e domain.Expr) (bson.D, error) {
	switch n := e.(type) {
	case domain.True:
		return bson.D{}, nil
	case domain.Cond:
		return compileCond(m, n)
	case domain.And:
		return compileBinary(m, "$and", n.Left, n.Right)
	case domain.Or:
		return compileBinary(m, "$or", n.Left, n.Right)
	case domain.Not:
		// $nor over a single branch negates it with the store's full
		// three-valued semantics, unlike field-level $not which cannot
		// wrap every filter shape.
		inner, err := compileExpr(m, n.Inner)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	}
	return nil, fmt.Errorf("unhandled expression node %T", e)
}

func compileBinary(m *model.Model, op string, left, right domain.Expr) (bson.D, error) {
	l, err := compileExpr(m, left)
	if err != nil {
		return nil, err
	}
	r, err := compileExpr(m, right)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: op, Value: bson.A{l, r}}}, nil
}

func compileCond(m *model.Model, c domain.Cond) (bson.D, error) {
	f, ok := m.Lookup(c.Field)
	if !ok {
		return nil, &query.CompilationError{Op: "filter", Reason: fmt.Sprintf("unknown field %q", c.Field)}
	}
	if !operatorAllowed(c.Op, f.Type) {
		return nil, &query.UnsupportedOperatorError{
			Operator:  string(c.Op),
			Field:     c.Field,
			FieldType: string(f.Type),
		}
	}
	key := f.StorageName()

	switch c.Op {
	case domain.OpIsNull:
		return bson.D{{Key: key, Value: bson.D{{Key: "$eq", Value: nil}}}}, nil
	case domain.OpIsNotNull:
		return bson.D{{Key: key, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
	case domain.OpLike, domain.OpILike:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, &query.CompilationError{Op: "filter", Reason: fmt.Sprintf("pattern for %s must be a string, got %T", c.Field, c.Value)}
		}
		match := bson.D{{Key: "$regex", Value: likeToRegex(pattern)}}
		if c.Op == domain.OpILike {
			match = append(match, bson.E{Key: "$options", Value: "i"})
		}
		return bson.D{{Key: key, Value: match}}, nil
	case domain.OpIn, domain.OpNotIn:
		items, ok := c.Value.([]any)
		if !ok {
			return nil, &query.CompilationError{Op: "filter", Reason: fmt.Sprintf("%s for %s needs a list, got %T", c.Op, c.Field, c.Value)}
		}
		wire := make(bson.A, len(items))
		for i, item := range items {
			w, err := coerceField(item, f.Type)
			if err != nil {
				return nil, &query.CompilationError{Op: "filter", Reason: err.Error()}
			}
			wire[i] = w
		}
		return bson.D{{Key: key, Value: bson.D{{Key: nativeOp[c.Op], Value: wire}}}}, nil
	default:
		wire, err := coerceField(c.Value, f.Type)
		if err != nil {
			return nil, &query.CompilationError{Op: "filter", Reason: err.Error()}
		}
		return bson.D{{Key: key, Value: bson.D{{Key: nativeOp[c.Op], Value: wire}}}}, nil
	}
}

// compileAliasExpr lowers a tree whose fields are operation aliases rather
// than declared model fields. Values coerce by their Go type alone and
// every operator is admitted; the store evaluates what it can.
func compileAliasExpr(e domain.Expr) (bson.D, error) {
	switch n := e.(type) {
	case domain.True:
		return bson.D{}, nil
	case domain.Cond:
		return compileAliasCond(n)
	case domain.And:
		return aliasBinary("$and", n.Left, n.Right)
	case domain.Or:
		return aliasBinary("$or", n.Left, n.Right)
	case domain.Not:
		inner, err := compileAliasExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	}
	return nil, fmt.Errorf("unhandled expression node %T", e)
}

func aliasBinary(op string, left, right domain.Expr) (bson.D, error) {
	l, err := compileAliasExpr(left)
	if err != nil {
		return nil, err
	}
	r, err := compileAliasExpr(right)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: op, Value: bson.A{l, r}}}, nil
}

func compileAliasCond(c domain.Cond) (bson.D, error) {
	switch c.Op {
	case domain.OpIsNull:
		return bson.D{{Key: c.Field, Value: bson.D{{Key: "$eq", Value: nil}}}}, nil
	case domain.OpIsNotNull:
		return bson.D{{Key: c.Field, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
	case domain.OpLike, domain.OpILike:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, &query.CompilationError{Op: "having", Reason: fmt.Sprintf("pattern for %s must be a string, got %T", c.Field, c.Value)}
		}
		match := bson.D{{Key: "$regex", Value: likeToRegex(pattern)}}
		if c.Op == domain.OpILike {
			match = append(match, bson.E{Key: "$options", Value: "i"})
		}
		return bson.D{{Key: c.Field, Value: match}}, nil
	case domain.OpIn, domain.OpNotIn:
		items, ok := c.Value.([]any)
		if !ok {
			return nil, &query.CompilationError{Op: "having", Reason: fmt.Sprintf("%s for %s needs a list, got %T", c.Op, c.Field, c.Value)}
		}
		wire := make(bson.A, len(items))
		for i, item := range items {
			w, err := coerceScalar(item)
			if err != nil {
				return nil, &query.CompilationError{Op: "having", Reason: err.Error()}
			}
			wire[i] = w
		}
		return bson.D{{Key: c.Field, Value: bson.D{{Key: nativeOp[c.Op], Value: wire}}}}, nil
	default:
		wire, err := coerceScalar(c.Value)
		if err != nil {
			return nil, &query.CompilationError{Op: "having", Reason: err.Error()}
		}
		return bson.D{{Key: c.Field, Value: bson.D{{Key: nativeOp[c.Op], Value: wire}}}}, nil
	}
}

// findProjection builds the find-mode projection document. Nil means the
// whole document.
func findProjection(spec *query.Spec) bson.D {
	if spec.Projection == nil {
		return nil
	}
	proj := make(bson.D, 0, len(spec.Projection)+1)
	hasID := false
	for _, name := range spec.Projection {
		f, ok := spec.Model.Lookup(name)
		if !ok {
			continue
		}
		key := f.StorageName()
		if key == "_id" {
			hasID = true
		}
		proj = append(proj, bson.E{Key: key, Value: 1})
	}
	if !hasID {
		// The store includes _id by default; suppress it unless selected.
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

// pipelineProjection builds the trailing $project for pipeline mode. After
// an aggregate the group stage already fixed the shape, so nothing is
// appended; otherwise a base projection plus any operation-added keys.
func pipelineProjection(spec *query.Spec) bson.D {
	if spec.Projection == nil || spec.HasAggregate() {
		return nil
	}
	proj := make(bson.D, 0, len(spec.Projection)+len(spec.Operations)+1)
	hasID := false
	for _, name := range spec.Projection {
		f, ok := spec.Model.Lookup(name)
		if !ok {
			continue
		}
		key := f.StorageName()
		if key == "_id" {
			hasID = true
		}
		proj = append(proj, bson.E{Key: key, Value: 1})
	}
	for _, op := range spec.Operations {
		switch o := op.(type) {
		case *query.JoinOp:
			proj = append(proj, bson.E{Key: o.Target.Name, Value: 1})
		case *query.WindowOp:
			proj = append(proj, bson.E{Key: o.Alias, Value: 1})
		}
	}
	if !hasID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

// sortDoc builds a find-mode sort document over storage names.
func sortDoc(m *model.Model, order []query.Order) bson.D {
	if len(order) == 0 {
		return nil
	}
	keys := make(bson.D, 0, len(order))
	for _, ord := range order {
		key := ord.Field
		if f, ok := m.Lookup(ord.Field); ok {
			key = f.StorageName()
		}
		keys = append(keys, bson.E{Key: key, Value: sortValue(ord.Dir)})
	}
	return keys
}

// resultKey resolves a field name to the document key it lives under at
// the end of the pipeline. Grouping re-emits fields under their declared
// names; without it the storage name still applies.
func resultKey(spec *query.Spec, field string) string {
	if spec.HasAggregate() {
		return field
	}
	if f, ok := spec.Model.Lookup(field); ok {
		return f.StorageName()
	}
	return field
}

func sortValue(d query.Direction) int {
	if d == query.Desc {
		return -1
	}
	return 1
}
