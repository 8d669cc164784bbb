package mongodoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/model"
	"github.com/docql/docql/query"
)

// compileOperation lowers one operation to its pipeline stages. The switch
// is exhaustive over the sealed operation set.
func compileOperation(m *model.Model, op query.Operation) (mongo.Pipeline, error) {
	switch o := op.(type) {
	case *query.AggregateOp:
		return compileAggregate(m, o)
	case *query.JoinOp:
		return compileJoin(m, o)
	case *query.WindowOp:
		return compileWindow(m, o)
	}
	return nil, fmt.Errorf("unhandled operation %T", op)
}

// compileAggregate lowers grouping to three stages: $group computes the
// accumulators, $project flattens the compound group key back to top-level
// fields, and an optional $match applies the having domain over the metric
// aliases.
func compileAggregate(m *model.Model, o *query.AggregateOp) (mongo.Pipeline, error) {
	var groupID any
	if len(o.GroupBy) == 0 {
		groupID = nil
	} else {
		id := make(bson.D, 0, len(o.GroupBy))
		for _, name := range o.GroupBy {
			f, _ := m.Lookup(name)
			id = append(id, bson.E{Key: name, Value: "$" + f.StorageName()})
		}
		groupID = id
	}

	group := bson.D{{Key: "_id", Value: groupID}}
	for _, mt := range o.Metrics {
		group = append(group, bson.E{Key: mt.Alias, Value: accumulator(m, mt)})
	}

	project := bson.D{{Key: "_id", Value: 0}}
	for _, name := range o.GroupBy {
		project = append(project, bson.E{Key: name, Value: "$_id." + name})
	}
	for _, mt := range o.Metrics {
		project = append(project, bson.E{Key: mt.Alias, Value: 1})
	}

	stages := mongo.Pipeline{
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: project}},
	}

	if len(o.Having) > 0 {
		expr, err := domain.NormalizeNonEmpty(o.Having)
		if err != nil {
			return nil, err
		}
		match, err := compileAliasExpr(expr)
		if err != nil {
			return nil, err
		}
		stages = append(stages, bson.D{{Key: "$match", Value: match}})
	}
	return stages, nil
}

func accumulator(m *model.Model, mt query.Metric) bson.D {
	if mt.Fn == query.MetricCount {
		return bson.D{{Key: "$sum", Value: 1}}
	}
	f, _ := m.Lookup(mt.Field)
	return bson.D{{Key: "$" + string(mt.Fn), Value: "$" + f.StorageName()}}
}

// compileJoin lowers a join to $lookup, attaching matches as a list under
// the target model's name. A field selection switches to the pipeline form
// so the restriction happens on the foreign side; an inner join appends a
// $match dropping rows whose list is empty.
func compileJoin(m *model.Model, o *query.JoinOp) (mongo.Pipeline, error) {
	local, _ := m.Lookup(o.LocalField)
	foreign, _ := o.Target.Lookup(o.ForeignField)

	var lookup bson.D
	if len(o.Select) == 0 {
		lookup = bson.D{
			{Key: "from", Value: o.Target.Collection},
			{Key: "localField", Value: local.StorageName()},
			{Key: "foreignField", Value: foreign.StorageName()},
			{Key: "as", Value: o.Target.Name},
		}
	} else {
		proj := make(bson.D, 0, len(o.Select)+1)
		hasID := false
		for _, sel := range o.Select {
			f, _ := o.Target.Lookup(sel)
			key := f.StorageName()
			if key == "_id" {
				hasID = true
			}
			proj = append(proj, bson.E{Key: key, Value: 1})
		}
		if !hasID {
			proj = append(proj, bson.E{Key: "_id", Value: 0})
		}
		lookup = bson.D{
			{Key: "from", Value: o.Target.Collection},
			{Key: "let", Value: bson.D{{Key: "local", Value: "$" + local.StorageName()}}},
			{Key: "pipeline", Value: mongo.Pipeline{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$" + foreign.StorageName(), "$$local"}},
				}}}}},
				bson.D{{Key: "$project", Value: proj}},
			}},
			{Key: "as", Value: o.Target.Name},
		}
	}

	stages := mongo.Pipeline{bson.D{{Key: "$lookup", Value: lookup}}}
	if o.Kind == query.JoinInner {
		stages = append(stages, bson.D{{Key: "$match", Value: bson.D{
			{Key: o.Target.Name, Value: bson.D{{Key: "$ne", Value: bson.A{}}}},
		}}})
	}
	return stages, nil
}

// compileWindow lowers a window function to one $setWindowFields stage.
// An absent frame on a moving aggregate spans the whole partition.
func compileWindow(m *model.Model, o *query.WindowOp) (mongo.Pipeline, error) {
	stage := bson.D{}

	switch len(o.PartitionBy) {
	case 0:
	case 1:
		f, _ := m.Lookup(o.PartitionBy[0])
		stage = append(stage, bson.E{Key: "partitionBy", Value: "$" + f.StorageName()})
	default:
		parts := make(bson.D, 0, len(o.PartitionBy))
		for _, p := range o.PartitionBy {
			f, _ := m.Lookup(p)
			parts = append(parts, bson.E{Key: p, Value: "$" + f.StorageName()})
		}
		stage = append(stage, bson.E{Key: "partitionBy", Value: parts})
	}

	if len(o.OrderBy) > 0 {
		sortBy := make(bson.D, 0, len(o.OrderBy))
		for _, ord := range o.OrderBy {
			f, _ := m.Lookup(ord.Field)
			sortBy = append(sortBy, bson.E{Key: f.StorageName(), Value: sortValue(ord.Dir)})
		}
		stage = append(stage, bson.E{Key: "sortBy", Value: sortBy})
	}

	var fn bson.D
	switch o.Fn {
	case query.WindowRowNumber:
		fn = bson.D{{Key: "$documentNumber", Value: bson.D{}}}
	case query.WindowRank:
		fn = bson.D{{Key: "$rank", Value: bson.D{}}}
	default:
		f, _ := m.Lookup(o.Field)
		fn = bson.D{{Key: "$" + string(o.Fn), Value: "$" + f.StorageName()}}
		if o.Frame != nil {
			unit := "documents"
			if o.Frame.Unit == query.FrameRange {
				unit = "range"
			}
			fn = append(fn, bson.E{Key: "window", Value: bson.D{
				{Key: unit, Value: bson.A{o.Frame.Start, o.Frame.End}},
			}})
		} else {
			fn = append(fn, bson.E{Key: "window", Value: bson.D{
				{Key: "documents", Value: bson.A{"unbounded", "unbounded"}},
			}})
		}
	}
	stage = append(stage, bson.E{Key: "output", Value: bson.D{{Key: o.Alias, Value: fn}}})

	return mongo.Pipeline{bson.D{{Key: "$setWindowFields", Value: stage}}}, nil
}
