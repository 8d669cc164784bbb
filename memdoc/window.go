package memdoc

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stageWindow interprets a $setWindowFields stage. Documents come out in
// partition-major order, each partition sorted by the stage's sortBy;
// callers that need a total order sort afterwards, as the compiler
// arranges.
func stageWindow(docs []bson.M, v any) ([]bson.M, error) {
	spec, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("expects a document")
	}
	var partitionBy any
	var sortBy bson.D
	var output bson.D
	for _, e := range spec {
		switch e.Key {
		case "partitionBy":
			partitionBy = e.Value
		case "sortBy":
			sortBy, ok = e.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("sortBy expects a document")
			}
		case "output":
			output, ok = e.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("output expects a document")
			}
		default:
			return nil, fmt.Errorf("unknown window option %s", e.Key)
		}
	}
	if len(output) != 1 {
		return nil, fmt.Errorf("expects exactly one output field")
	}
	alias := output[0].Key
	fnDoc, ok := output[0].Value.(bson.D)
	if !ok || len(fnDoc) == 0 {
		return nil, fmt.Errorf("output %s is not a document", alias)
	}

	partitions, order, err := partition(docs, partitionBy)
	if err != nil {
		return nil, err
	}

	var out []bson.M
	for _, key := range order {
		rows := partitions[key]
		if sortBy != nil {
			sortDocs(rows, sortBy)
		}
		values, err := windowValues(rows, sortBy, fnDoc)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			cp := make(bson.M, len(row)+1)
			for k, val := range row {
				cp[k] = val
			}
			cp[alias] = values[i]
			out = append(out, cp)
		}
	}
	return out, nil
}

func partition(docs []bson.M, by any) (map[string][]bson.M, []string, error) {
	parts := make(map[string][]bson.M)
	var order []string
	for _, doc := range docs {
		var keyDoc bson.D
		switch spec := by.(type) {
		case nil:
		case string:
			val, _ := resolvePath(doc, spec)
			keyDoc = bson.D{{Key: "p", Value: val}}
		case bson.D:
			keyDoc = make(bson.D, 0, len(spec))
			for _, e := range spec {
				ref, ok := e.Value.(string)
				if !ok {
					return nil, nil, fmt.Errorf("partition key %s is not a field reference", e.Key)
				}
				val, _ := resolvePath(doc, ref)
				keyDoc = append(keyDoc, bson.E{Key: e.Key, Value: val})
			}
		default:
			return nil, nil, fmt.Errorf("unsupported partitionBy %T", by)
		}
		key := canonicalKey(keyDoc)
		if _, ok := parts[key]; !ok {
			order = append(order, key)
		}
		parts[key] = append(parts[key], doc)
	}
	return parts, order, nil
}

// windowValues computes the output value for every row of one sorted
// partition.
func windowValues(rows []bson.M, sortBy bson.D, fnDoc bson.D) ([]any, error) {
	fn := fnDoc[0].Key
	values := make([]any, len(rows))

	switch fn {
	case "$documentNumber":
		for i := range rows {
			values[i] = int64(i + 1)
		}
		return values, nil
	case "$rank":
		rank := int64(1)
		for i := range rows {
			if i > 0 && !sameSortKey(rows[i-1], rows[i], sortBy) {
				rank = int64(i + 1)
			}
			values[i] = rank
		}
		return values, nil
	case "$sum", "$avg", "$min", "$max":
	default:
		return nil, fmt.Errorf("unknown window function %s", fn)
	}

	ref, ok := fnDoc[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("%s expects a field reference", fn)
	}

	var window bson.D
	for _, e := range fnDoc[1:] {
		if e.Key == "window" {
			window, ok = e.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("window expects a document")
			}
		}
	}

	for i := range rows {
		frame, err := frameRows(rows, i, sortBy, window)
		if err != nil {
			return nil, err
		}
		acc := &accState{}
		for _, row := range frame {
			val, _ := resolvePath(row, ref)
			acc.add(val)
		}
		v, err := acc.result(fn, false)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func sameSortKey(a, b bson.M, sortBy bson.D) bool {
	for _, k := range sortBy {
		if compareForSort(a[k.Key], b[k.Key]) != 0 {
			return false
		}
	}
	return true
}

// frameRows selects the rows a bounded aggregate sees from position i.
// Document bounds are offsets from the current row; range bounds are
// value offsets over the single sort field. "unbounded" opens the side.
func frameRows(rows []bson.M, i int, sortBy bson.D, window bson.D) ([]bson.M, error) {
	if len(window) != 1 {
		return nil, fmt.Errorf("window needs exactly one bound specification")
	}
	bounds, ok := window[0].Value.(bson.A)
	if !ok || len(bounds) != 2 {
		return nil, fmt.Errorf("window bounds must be a two-element array")
	}

	switch window[0].Key {
	case "documents":
		lo, hi := 0, len(rows)-1
		if n, bounded := asInt64(bounds[0]); bounded {
			lo = clamp(i+int(n), 0, len(rows))
		}
		if n, bounded := asInt64(bounds[1]); bounded {
			hi = i + int(n)
			if hi >= len(rows) {
				hi = len(rows) - 1
			}
		}
		if hi < lo {
			return nil, nil
		}
		return rows[lo : hi+1], nil
	case "range":
		if len(sortBy) != 1 {
			return nil, fmt.Errorf("range window requires a single sort field")
		}
		field := sortBy[0].Key
		cur, ok := rangeValue(rows[i][field])
		if !ok {
			return nil, nil
		}
		loOff, okLo := asInt64(bounds[0])
		hiOff, okHi := asInt64(bounds[1])
		if !okLo || !okHi {
			return nil, fmt.Errorf("range bounds must be integers")
		}
		lo := cur.Add(decimal.NewFromInt(loOff))
		hi := cur.Add(decimal.NewFromInt(hiOff))
		var frame []bson.M
		for _, row := range rows {
			v, ok := rangeValue(row[field])
			if !ok {
				continue
			}
			if v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0 {
				frame = append(frame, row)
			}
		}
		return frame, nil
	}
	return nil, fmt.Errorf("unknown window unit %s", window[0].Key)
}

// rangeValue widens a sort value for range arithmetic. Timestamps count
// in milliseconds.
func rangeValue(v any) (decimal.Decimal, bool) {
	if dt, ok := v.(primitive.DateTime); ok {
		return decimal.NewFromInt(int64(dt)), true
	}
	return numeric(v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
