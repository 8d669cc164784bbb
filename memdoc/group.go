package memdoc

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// accState accumulates one metric over a document set. Sums widen through
// decimals so int, float and decimal inputs mix without precision loss,
// and the result narrows back to the widest input kind seen.
type accState struct {
	count      int64
	seen       int64
	sum        decimal.Decimal
	sawFloat   bool
	sawDecimal bool
	min        any
	max        any
}

func (a *accState) add(v any) {
	a.count++
	if v == nil {
		return
	}
	if _, isDec := v.(primitive.Decimal128); isDec {
		a.sawDecimal = true
	}
	if _, isFloat := v.(float64); isFloat {
		a.sawFloat = true
	}
	if d, ok := numeric(v); ok {
		a.seen++
		a.sum = a.sum.Add(d)
	}
	if a.min == nil {
		a.min = v
	} else if cmp, ok := compareValues(v, a.min); ok && cmp < 0 {
		a.min = v
	}
	if a.max == nil {
		a.max = v
	} else if cmp, ok := compareValues(v, a.max); ok && cmp > 0 {
		a.max = v
	}
}

func (a *accState) result(fn string, counting bool) (any, error) {
	if counting {
		return a.count, nil
	}
	switch fn {
	case "$sum":
		return a.narrow(a.sum), nil
	case "$avg":
		if a.seen == 0 {
			return nil, nil
		}
		avg := a.sum.Div(decimal.NewFromInt(a.seen))
		if a.sawDecimal {
			return toDecimal128(avg)
		}
		f, _ := avg.Float64()
		return f, nil
	case "$min":
		return a.min, nil
	case "$max":
		return a.max, nil
	}
	return nil, fmt.Errorf("unknown accumulator %s", fn)
}

func (a *accState) narrow(d decimal.Decimal) any {
	if a.sawDecimal {
		v, err := toDecimal128(d)
		if err != nil {
			return nil
		}
		return v
	}
	if a.sawFloat {
		f, _ := d.Float64()
		return f
	}
	return d.IntPart()
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

// stageGroup interprets a $group stage: the _id entry names the compound
// key, every following entry is an accumulator. Groups come out in first-
// appearance order so downstream stages see a deterministic sequence.
func stageGroup(docs []bson.M, v any) ([]bson.M, error) {
	spec, ok := v.(bson.D)
	if !ok || len(spec) == 0 || spec[0].Key != "_id" {
		return nil, fmt.Errorf("expects a document starting with _id")
	}
	idSpec := spec[0].Value
	metrics := spec[1:]

	type group struct {
		id   any
		accs []*accState
	}
	var order []string
	groups := make(map[string]*group)

	for _, doc := range docs {
		id, keyDoc, err := groupID(doc, idSpec)
		if err != nil {
			return nil, err
		}
		key := canonicalKey(keyDoc)
		g, ok := groups[key]
		if !ok {
			g = &group{id: id, accs: make([]*accState, len(metrics))}
			for i := range g.accs {
				g.accs[i] = &accState{}
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, m := range metrics {
			fnDoc, ok := m.Value.(bson.D)
			if !ok || len(fnDoc) == 0 {
				return nil, fmt.Errorf("accumulator %s is not a document", m.Key)
			}
			if ref, isRef := fnDoc[0].Value.(string); isRef {
				val, _ := resolvePath(doc, ref)
				g.accs[i].add(val)
			} else {
				g.accs[i].add(nil)
			}
		}
	}

	out := make([]bson.M, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := bson.M{"_id": g.id}
		for i, m := range metrics {
			fnDoc := m.Value.(bson.D)
			fn := fnDoc[0].Key
			_, counting := fnDoc[0].Value.(int)
			val, err := g.accs[i].result(fn, counting)
			if err != nil {
				return nil, err
			}
			row[m.Key] = val
		}
		out = append(out, row)
	}
	return out, nil
}

// groupID resolves the compound key for one document: the value stored
// under _id in the output row, plus an ordered copy used for map keying.
func groupID(doc bson.M, idSpec any) (any, bson.D, error) {
	switch spec := idSpec.(type) {
	case nil:
		return nil, nil, nil
	case bson.D:
		id := make(bson.M, len(spec))
		keyDoc := make(bson.D, 0, len(spec))
		for _, e := range spec {
			ref, ok := e.Value.(string)
			if !ok {
				return nil, nil, fmt.Errorf("group key %s is not a field reference", e.Key)
			}
			val, _ := resolvePath(doc, ref)
			id[e.Key] = val
			keyDoc = append(keyDoc, bson.E{Key: e.Key, Value: val})
		}
		return id, keyDoc, nil
	}
	return nil, nil, fmt.Errorf("unsupported group key %T", idSpec)
}

// canonicalKey renders a group key deterministically for map lookup. The
// key document is ordered, so equal keys render identically.
func canonicalKey(keyDoc bson.D) string {
	if keyDoc == nil {
		return "null"
	}
	out, err := bson.MarshalExtJSON(keyDoc, true, false)
	if err != nil {
		return fmt.Sprintf("%v", keyDoc)
	}
	return string(out)
}
