package mongodoc

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Artifact is a compiled query in the store's native vocabulary. One of
// two modes applies: a plain find (Filter plus cursor modifiers) when the
// specification carries no operations, or a Pipeline when it does. Empty
// marks a query whose result set is known empty at compile time; runners
// must not touch the store for it.
//
// Artifacts are immutable after Compile returns.
type Artifact struct {
	Collection string

	// Empty short-circuits execution. The store's own limit of zero means
	// "no limit", so the empty case never reaches it.
	Empty bool

	// Find mode.
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Skip       *int64
	Limit      *int64

	// Pipeline mode. Non-nil exactly when the spec has operations.
	Pipeline mongo.Pipeline
}

// ExtJSON renders the artifact as extended JSON with a fixed key order.
// Two artifacts compiled from equal specifications render byte-identical
// output, which is what the golden tests pin.
func (a *Artifact) ExtJSON() (string, error) {
	doc := bson.D{{Key: "collection", Value: a.Collection}}
	if a.Empty {
		doc = append(doc, bson.E{Key: "empty", Value: true})
	} else if a.Pipeline != nil {
		doc = append(doc, bson.E{Key: "pipeline", Value: a.Pipeline})
	} else {
		doc = append(doc, bson.E{Key: "filter", Value: a.Filter})
		if a.Projection != nil {
			doc = append(doc, bson.E{Key: "projection", Value: a.Projection})
		}
		if a.Sort != nil {
			doc = append(doc, bson.E{Key: "sort", Value: a.Sort})
		}
		if a.Skip != nil {
			doc = append(doc, bson.E{Key: "skip", Value: *a.Skip})
		}
		if a.Limit != nil {
			doc = append(doc, bson.E{Key: "limit", Value: *a.Limit})
		}
	}
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
